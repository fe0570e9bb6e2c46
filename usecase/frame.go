package usecase

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/satriahrh/formcoach/domain"
)

// RawFrame is an inbound frame as read from the transport
type RawFrame struct {
	Data   []byte
	Binary bool
	// Paused is set when the session was inactive as the frame arrived.
	// Such a frame is never analysed, even if the session resumes before
	// the worker reaches it.
	Paused bool
}

// Frame is a decoded image ready for analysis
type Frame struct {
	Image    []byte
	MIMEType string
}

// DecodeFrame turns a transport frame into image bytes. Binary frames carry
// the image as is; text frames carry it base64 encoded, optionally as a data URL.
func DecodeFrame(raw RawFrame) (Frame, error) {
	if raw.Binary {
		return sniffImage(raw.Data)
	}
	return DecodeImage(string(raw.Data))
}

// DecodeImage decodes a base64 or data URL encoded image
func DecodeImage(encoded string) (Frame, error) {
	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return Frame{}, fmt.Errorf("%w: unsupported data URL", domain.ErrMalformedInput)
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return Frame{}, fmt.Errorf("%w: empty frame", domain.ErrMalformedInput)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return Frame{}, fmt.Errorf("%w: invalid base64: %v", domain.ErrMalformedInput, err)
		}
	}
	return sniffImage(data)
}

func sniffImage(data []byte) (Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", domain.ErrMalformedInput)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Frame{}, fmt.Errorf("%w: payload is %s, not an image", domain.ErrMalformedInput, mtype.String())
	}
	return Frame{Image: data, MIMEType: mtype.String()}, nil
}
