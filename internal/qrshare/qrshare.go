// Package qrshare renders room-share QR codes, so a device in the same room
// can join by pointing a camera at a screen instead of typing the room id.
package qrshare

import (
	"fmt"
	"os"
	"time"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// GeneratePNG renders url as a QR code and returns the PNG bytes. It follows
// the teacher's own generateQRCode (internal/handlers/sse.go): the
// writer/standard backend only writes to a path, so this renders to a
// uniquely named temp file and reads it back rather than holding an open
// file handle across goroutines.
func GeneratePNG(url string) ([]byte, error) {
	qrc, err := qrcode.NewWith(url,
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
	)
	if err != nil {
		return nil, fmt.Errorf("create QR code: %w", err)
	}

	tmpFile := fmt.Sprintf("%s/ludoforge_qr_%d.png", os.TempDir(), time.Now().UnixNano())
	defer os.Remove(tmpFile)

	w, err := standard.New(tmpFile,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err != nil {
		return nil, fmt.Errorf("create QR writer: %w", err)
	}

	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("save QR code: %w", err)
	}

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, fmt.Errorf("read QR code file: %w", err)
	}
	return data, nil
}

// ShareURL builds the join URL a QR code encodes for a room, from the
// request's resolved base URL and the room id.
func ShareURL(baseURL, roomID string) string {
	return fmt.Sprintf("%s/rooms/%s", baseURL, roomID)
}
