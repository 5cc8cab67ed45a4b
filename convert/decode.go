package convert

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Decode errors. ErrTooSmall marks payloads that decoded but are too short
// to be a real image; callers record these as skipped, not failed.
var (
	ErrMalformed = errors.New("decode: malformed base64 payload")
	ErrTooSmall  = errors.New("decode: payload below minimum image size")
)

// minImageBytes is a data-quality heuristic, not a format guarantee:
// anything under 100 decoded bytes is a placeholder or corrupt payload,
// never a usable image.
const minImageBytes = 100

// Decoded is a validated image payload.
type Decoded struct {
	Bytes       []byte
	ContentType string
}

// DecodePayload turns a transport payload (base64, possibly with a data-URI
// prefix, possibly line-wrapped or missing padding) into validated bytes.
//
// A single repair pass is attempted on padding errors; there is no retry
// beyond that — this is a data-quality guard, not a network operation.
func DecodePayload(raw string) (Decoded, error) {
	contentType := "image/png"

	// Optional "data:<mime>;base64," prefix carries the declared type.
	if idx := strings.Index(raw, ";base64,"); idx >= 0 && strings.HasPrefix(raw, "data:") {
		if mime := raw[len("data:"):idx]; mime != "" {
			contentType = mime
		}
		raw = raw[idx+len(";base64,"):]
	}

	// Lenient cleanup for payloads line-wrapped upstream.
	cleaned := strings.Join(strings.Fields(raw), "")
	if cleaned == "" {
		return Decoded{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Repair pass: pad to a multiple of 4 and retry once.
		if pad := len(cleaned) % 4; pad != 0 {
			data, err = base64.StdEncoding.DecodeString(cleaned + strings.Repeat("=", 4-pad))
		}
		if err != nil {
			return Decoded{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if len(data) < minImageBytes {
		return Decoded{}, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
	}

	return Decoded{Bytes: data, ContentType: contentType}, nil
}
