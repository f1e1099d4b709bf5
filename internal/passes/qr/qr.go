// Package qr encodes a ticket's redemption token as a scannable PNG. The
// token is the only payload: the printable composite (event template image,
// positioning) is produced by a separate rendering component that consumes
// this artifact.
package qr

import (
	"github.com/skip2/go-qrcode"
)

const defaultSize = 512

// EncodeToken renders the token as a PNG QR code. A size of 0 uses the
// default 512px.
func EncodeToken(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultSize
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}
