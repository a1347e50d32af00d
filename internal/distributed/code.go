package distributed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// EncodeCode compresses the pipeline code shipped with a task.
func EncodeCode(code string) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write([]byte(code)); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCode reverses EncodeCode.
func DecodeCode(blob []byte) (string, error) {
	dec, err := zstd.NewReader(bytes.NewReader(blob), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return "", fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	code, err := io.ReadAll(dec)
	if err != nil {
		return "", fmt.Errorf("failed to decompress pipeline code: %w", err)
	}
	return string(code), nil
}
