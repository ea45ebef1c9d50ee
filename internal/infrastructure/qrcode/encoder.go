// Package qrcode renders access URIs as PNG QR codes.
package qrcode

import (
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

const defaultSize = 512

// Encoder produces square PNGs with medium error correction.
type Encoder struct {
	size int
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = defaultSize
	}
	return &Encoder{size: size}
}

func (e *Encoder) Encode(uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("nothing to encode")
	}
	png, err := qr.Encode(uri, qr.Medium, e.size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
