// Package payment generates the payment-reference QR image shown to
// customers during the payment-QR order flow.
//
// The reference is displayed but never validated or reconciled; payment
// processing stays outside the bot.
package payment

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the pixel width/height of the generated PNG.
const qrSize = 256

// ReferenceQR encodes the business payment reference as a QR code PNG.
func ReferenceQR(reference string) ([]byte, error) {
	if reference == "" {
		return nil, fmt.Errorf("payment reference cannot be empty")
	}
	png, err := qrcode.Encode(reference, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment reference QR: %w", err)
	}
	return png, nil
}
