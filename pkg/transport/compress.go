package transport

import (
	"bytes"
	"compress/gzip"

	"github.com/pulseflow/pulseflow/pkg/errors"
)

// CompressionThreshold is the serialized payload size above which gzip is
// attempted.
const CompressionThreshold = 1024

// CompressionResult carries the outbound body plus sizes for observability.
type CompressionResult struct {
	// Data is the bytes to put on the wire.
	Data []byte

	// Compressed indicates Data is gzip-encoded; the request must carry
	// a Content-Encoding marker so the receiving side can decompress.
	Compressed bool

	OriginalSize int
	FinalSize    int
}

// ShouldCompress reports whether the serialized payload is large enough to
// be worth compressing.
func ShouldCompress(raw []byte) bool {
	return len(raw) > CompressionThreshold
}

// CompressIfBeneficial gzips the payload when it exceeds the threshold and
// the result is actually smaller; otherwise the raw bytes pass through.
// Compression is advisory: any failure falls back to the raw payload.
func CompressIfBeneficial(raw []byte) CompressionResult {
	result := CompressionResult{
		Data:         raw,
		OriginalSize: len(raw),
		FinalSize:    len(raw),
	}
	if !ShouldCompress(raw) {
		return result
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return result
	}
	if err := zw.Close(); err != nil {
		return result
	}

	if buf.Len() >= len(raw) {
		return result
	}

	result.Data = buf.Bytes()
	result.Compressed = true
	result.FinalSize = buf.Len()
	return result
}

// Decompress reverses CompressIfBeneficial for receiving-side tests and
// local tooling.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCompression, "failed to open gzip stream")
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(zr); err != nil {
		return nil, errors.Wrap(err, errors.CodeCompression, "failed to decompress payload")
	}
	return buf.Bytes(), nil
}
