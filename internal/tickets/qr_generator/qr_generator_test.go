package qr_test

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	qr "ms-ticket-issuance/internal/tickets/qr_generator"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) string {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)

	result, err := zxingqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return result.GetText()
}

func TestEncodeRoundTrip(t *testing.T) {
	encoder := qr.NewEncoder(0)
	url := qr.VerificationURL("https://tickets.example.com", "3f8a1c2e-7b4d-4e59-9a61-0c2d5e8f1b3a")

	data, err := encoder.Encode(url)
	require.NoError(t, err)

	assert.Equal(t, "https://tickets.example.com/generate-ticket/3f8a1c2e-7b4d-4e59-9a61-0c2d5e8f1b3a", decode(t, data))
}

func TestEncodeIsDeterministic(t *testing.T) {
	encoder := qr.NewEncoder(256)

	first, err := encoder.EncodeTicket("http://localhost:3000", "abc")
	require.NoError(t, err)
	second, err := encoder.EncodeTicket("http://localhost:3000", "abc")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncodeSize(t *testing.T) {
	data, err := qr.NewEncoder(300).Encode("https://example.com/generate-ticket/x")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	encoder := qr.NewEncoder(0)

	inputs := []string{
		"",
		"not a url",
		"/generate-ticket/abc",
		"ftp://example.com/generate-ticket/abc",
		"https://example.com/" + strings.Repeat("x", 5000),
	}
	for _, in := range inputs {
		_, err := encoder.Encode(in)
		assert.ErrorIs(t, err, qr.ErrEncode, "input %.40q", in)
	}

	_, err := encoder.EncodeTicket("https://example.com", "")
	assert.ErrorIs(t, err, qr.ErrEncode)
}

func TestVerificationURL(t *testing.T) {
	assert.Equal(t, "https://a.example/generate-ticket/id-1", qr.VerificationURL("https://a.example/", "id-1"))
	assert.Equal(t, "https://a.example/generate-ticket/id-1", qr.VerificationURL("https://a.example", "id-1"))
	assert.Equal(t, "https://a.example/generate-ticket/a%2Fb", qr.VerificationURL("https://a.example", "a/b"))
}

func TestDataURI(t *testing.T) {
	data, err := qr.NewEncoder(0).Encode("https://example.com/generate-ticket/x")
	require.NoError(t, err)

	uri := qr.DataURI(data)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}
