package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrNoCode means the image was read but contained no QR code.
var ErrNoCode = errors.New("qr: no code found")

// DecodeImage returns the text of the first QR code found in img.
func DecodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qr: binarize: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return "", ErrNoCode
		}
		var checksum gozxing.ChecksumException
		var format gozxing.FormatException
		if errors.As(err, &checksum) || errors.As(err, &format) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("qr: decode: %w", err)
	}
	return result.GetText(), nil
}

// Decode reads a PNG or JPEG image and decodes the QR code in it.
func Decode(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("qr: read image: %w", err)
	}
	return DecodeImage(img)
}

// Encode renders content as a PNG QR code of size x size pixels.
func Encode(content string, size int) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

func decodeBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
