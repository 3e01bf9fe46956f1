package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

var ErrEncode = errors.New("qr encode failed")

// Encoder renders URLs as PNG QR codes. Equal input always produces
// byte-identical output.
type Encoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{Size: size, Level: qrcode.Medium}
}

// Encode returns a PNG QR code whose payload is exactly content, which must
// be an absolute http or https URL.
func (e *Encoder) Encode(content string) ([]byte, error) {
	if err := validateURL(content); err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(content, e.Level, e.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return png, nil
}

// EncodeTicket encodes the verification URL of a ticket.
func (e *Encoder) EncodeTicket(baseURL, ticketID string) ([]byte, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("%w: empty ticket id", ErrEncode)
	}
	return e.Encode(VerificationURL(baseURL, ticketID))
}

// VerificationURL is the address a scanned ticket points to.
func VerificationURL(baseURL, ticketID string) string {
	return strings.TrimRight(baseURL, "/") + "/generate-ticket/" + url.PathEscape(ticketID)
}

// DataURI wraps PNG bytes for inline use in an <img> tag.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func validateURL(content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrEncode)
	}
	u, err := url.Parse(content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrEncode, content)
	}
	return nil
}
