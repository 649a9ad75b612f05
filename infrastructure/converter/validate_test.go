package converter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTFLite(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "valid", data: tfliteBytes()},
		{name: "empty", data: nil, wantErr: true},
		{name: "short", data: []byte("TFL3"), wantErr: true},
		{name: "wrong identifier", data: []byte{0, 0, 0, 0, 'O', 'N', 'N', 'X'}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.tflite")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			err := ValidateTFLite(path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOutput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateTFLite_Missing(t *testing.T) {
	err := ValidateTFLite(filepath.Join(t.TempDir(), "missing.tflite"))
	assert.ErrorIs(t, err, ErrInvalidOutput)
}
