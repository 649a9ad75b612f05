package converter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidOutput is returned when a converted file is not a TFLite model.
var ErrInvalidOutput = errors.New("invalid tflite output")

// tfliteIdentifier is the flatbuffer file identifier of the TFLite schema,
// stored at bytes 4..8 after the root table offset.
var tfliteIdentifier = []byte("TFL3")

// ValidateTFLite checks that path holds a TFLite flatbuffer.
func ValidateTFLite(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	defer f.Close() //nolint:errcheck

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %s is too short", ErrInvalidOutput, path)
	}
	if !bytes.Equal(header[4:8], tfliteIdentifier) {
		return fmt.Errorf("%w: %s has identifier %q", ErrInvalidOutput, path, header[4:8])
	}
	return nil
}
