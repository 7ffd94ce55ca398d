package imageedit

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"listify/internal/domain"
)

// ParseDataURL decodes a data:<mime>;base64,<data> envelope. A string that
// does not start with "data:" is decoded as bare base64 and its type sniffed.
func ParseDataURL(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("%w: image is empty", domain.ErrInvalidInput)
	}

	mime := ""
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		header, data, ok := strings.Cut(raw[len("data:"):], ",")
		if !ok {
			return nil, "", fmt.Errorf("%w: data url has no payload", domain.ErrInvalidInput)
		}
		params := strings.Split(header, ";")
		mime = strings.ToLower(strings.TrimSpace(params[0]))
		base64Encoded := false
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				base64Encoded = true
			}
		}
		if !base64Encoded {
			return nil, "", fmt.Errorf("%w: data url must be base64 encoded", domain.ErrInvalidInput)
		}
		if !strings.HasPrefix(mime, "image/") {
			return nil, "", fmt.Errorf("%w: unsupported media type %q", domain.ErrInvalidInput, mime)
		}
		payload = data
	}

	decoded, err := decodeBase64(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", domain.ErrInvalidInput, err)
	}
	if len(decoded) == 0 {
		return nil, "", fmt.Errorf("%w: image is empty", domain.ErrInvalidInput)
	}
	if mime == "" {
		mime = http.DetectContentType(decoded)
		if !strings.HasPrefix(mime, "image/") {
			return nil, "", fmt.Errorf("%w: payload is not an image (%s)", domain.ErrInvalidInput, mime)
		}
	}
	return decoded, mime, nil
}

// EncodeDataURL is the inverse of ParseDataURL.
func EncodeDataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
