package imageedit

import (
	"encoding/base64"
	"errors"
	"testing"

	"listify/internal/domain"
)

func TestParseDataURL(t *testing.T) {
	png := encodePNG(t, 3, 3)
	std := base64.StdEncoding.EncodeToString(png)

	tests := []struct {
		name     string
		raw      string
		wantMIME string
		wantErr  bool
	}{
		{"data url", "data:image/png;base64," + std, "image/png", false},
		{"uppercase params", "data:IMAGE/PNG;BASE64," + std, "image/png", false},
		{"bare base64 sniffed", std, "image/png", false},
		{"raw encoding", "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(png), "image/png", false},
		{"wrapped lines", "data:image/png;base64," + std[:10] + "\n" + std[10:], "image/png", false},
		{"missing comma", "data:image/png;base64", "", true},
		{"not base64", "data:image/png," + std, "", true},
		{"not an image", "data:application/pdf;base64," + std, "", true},
		{"bad payload", "data:image/png;base64,@@@", "", true},
		{"bare text", base64.StdEncoding.EncodeToString([]byte("hello world")), "", true},
		{"empty", "  ", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, mime, err := ParseDataURL(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mime != tc.wantMIME {
				t.Fatalf("mime = %q, want %q", mime, tc.wantMIME)
			}
			if string(data) != string(png) {
				t.Fatalf("decoded payload differs")
			}
		})
	}
}

func TestEncodeDataURLRoundTrip(t *testing.T) {
	png := encodePNG(t, 2, 2)
	data, mime, err := ParseDataURL(EncodeDataURL(png, "image/png"))
	if err != nil || mime != "image/png" || string(data) != string(png) {
		t.Fatalf("round trip failed: mime=%q err=%v", mime, err)
	}
}
