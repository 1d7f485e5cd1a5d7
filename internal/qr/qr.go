package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPayload = errors.New("invalid qr payload")

// Generator produces and verifies the opaque payload printed on a ticket.
// The payload is the ticket id plus an HMAC over it, so a scanner can bind a
// scan to a ticket without the payload being guessable.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

func (g *Generator) sign(ticketID string) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(ticketID))
	return mac.Sum(nil)
}

// Payload returns the signed token for a ticket id.
func (g *Generator) Payload(ticketID string) string {
	sig := base64.RawURLEncoding.EncodeToString(g.sign(ticketID))
	return ticketID + "." + sig
}

// Verify checks the signature and returns the embedded ticket id.
func (g *Generator) Verify(payload string) (string, error) {
	idx := strings.LastIndex(payload, ".")
	if idx <= 0 || idx == len(payload)-1 {
		return "", ErrInvalidPayload
	}
	ticketID := payload[:idx]

	sig, err := base64.RawURLEncoding.DecodeString(payload[idx+1:])
	if err != nil {
		return "", ErrInvalidPayload
	}
	if !hmac.Equal(sig, g.sign(ticketID)) {
		return "", ErrInvalidPayload
	}
	return ticketID, nil
}

// EncodePNG renders the payload as a scannable QR image.
func (g *Generator) EncodePNG(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}
