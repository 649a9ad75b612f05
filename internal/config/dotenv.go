package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when no env file is named.
const DefaultEnvFile = ".env"

// LoadDotEnv exports the variables in the env file at path (DefaultEnvFile
// when empty) so settings such as KAGGLE_KEY or WORK_DIR can sit next to the
// models instead of in the shell. Variables already set in the process keep
// their value. A missing file is not an error; the returned count is the
// number of variables the file contributed.
func LoadDotEnv(path string) (int, error) {
	if path == "" {
		path = DefaultEnvFile
	}

	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read env file %s: %w", path, err)
	}

	applied := 0
	for key, value := range vars {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return applied, fmt.Errorf("set %s from %s: %w", key, path, err)
		}
		applied++
	}
	return applied, nil
}

// LoadConfig builds the AppConfig from the optional env file at envPath and
// the process environment, the environment taking precedence.
func LoadConfig(envPath string) (AppConfig, error) {
	if _, err := LoadDotEnv(envPath); err != nil {
		return AppConfig{}, err
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return AppConfig{}, err
	}
	return envCfg.ToAppConfig(), nil
}
