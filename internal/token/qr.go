package token

import (
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels used by the student view.
const DefaultQRSize = 256

// QRPNG renders payload as a PNG QR code with medium error correction.
func QRPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
