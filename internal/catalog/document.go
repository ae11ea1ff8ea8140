// Package catalog imports full catalog exports: decoding, normalization of
// legacy records, and the transactional swap into a store.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/examacademy/academy-server/internal/course"
)

// MaxDocumentBytes bounds a decoded catalog document.
const MaxDocumentBytes = 64 << 20

// zstdMagic is the frame header of a zstd stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Document is a catalog export: faculties with embedded courses plus
// standalone courses, using the public JSON field names.
type Document struct {
	Faculties []course.Faculty `json:"faculties"`
	Courses   []course.Course  `json:"courses"`
}

// IsEmpty reports whether the document carries no records at all.
func (d *Document) IsEmpty() bool {
	return len(d.Faculties) == 0 && len(d.Courses) == 0
}

// Decode reads a JSON document. Zstd input is detected from its frame
// header even when compressed is false.
func Decode(r io.Reader, compressed bool) (*Document, error) {
	br := bufio.NewReader(r)
	if !compressed {
		head, err := br.Peek(len(zstdMagic))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog: read header: %w", err)
		}
		compressed = bytes.Equal(head, zstdMagic)
	}

	var src io.Reader = br
	if compressed {
		decoder, err := zstd.NewReader(br, zstd.WithDecoderMaxMemory(MaxDocumentBytes))
		if err != nil {
			return nil, fmt.Errorf("catalog: create decoder: %w", err)
		}
		defer decoder.Close()
		src = decoder
	}

	limited := &io.LimitedReader{R: src, N: MaxDocumentBytes + 1}
	var doc Document
	if err := json.NewDecoder(limited).Decode(&doc); err != nil {
		if limited.N <= 0 {
			return nil, fmt.Errorf("catalog: document exceeds %d bytes", MaxDocumentBytes)
		}
		return nil, fmt.Errorf("catalog: decode document: %w", err)
	}
	return &doc, nil
}

// Encode writes doc as JSON, zstd-compressed when compress is set.
func Encode(w io.Writer, doc *Document, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(doc)
	}
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("catalog: create encoder: %w", err)
	}
	if err := json.NewEncoder(encoder).Encode(doc); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("catalog: encode document: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("catalog: close encoder: %w", err)
	}
	return nil
}
