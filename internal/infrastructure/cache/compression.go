package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compressed values are framed with a marker so decompression stays
// transparent to callers regardless of which tier served the bytes
var compressionMagic = []byte{0x1f, 0x9d, 'a', 'g'}

// isCompressed reports whether value carries the compression frame
func isCompressed(value []byte) bool {
	return len(value) > len(compressionMagic) && bytes.Equal(value[:len(compressionMagic)], compressionMagic)
}

// compress gzips value and prepends the frame marker
func compress(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(compressionMagic)

	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress reverses compress; unframed values pass through untouched
func decompress(value []byte) ([]byte, error) {
	if !isCompressed(value) {
		return value, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(value[len(compressionMagic):]))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache value: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache value: %w", err)
	}
	return out, nil
}
