// Package compress implements independent per-field LZ-class compression
// of UTF-8 JSON, tolerant of plain (uncompressed) input on decode.
package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// magic prefixes compressed payloads so Decompress can tell them apart
// from plain JSON without guessing: try decompress-then-parse first and
// fall back to plain parse, made unambiguous by the marker rather than
// exception-driven.
var magic = []byte("AOLZ4\x00")

// Compress returns data compressed with LZ4 and prefixed with the magic
// marker, unless data is smaller than minBytes, in which case it is
// returned unchanged (small payloads are not worth the marker overhead).
func Compress(data []byte, minBytes int) ([]byte, error) {
	if len(data) < minBytes {
		return data, nil
	}

	var buf bytes.Buffer
	buf.Write(magic)
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Input without the magic marker is returned
// unchanged, so callers can pass either compressed or plain bytes.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, magic) {
		return data, nil
	}

	r := lz4.NewReader(bytes.NewReader(data[len(magic):]))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsCompressed reports whether data carries the compression marker.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}
