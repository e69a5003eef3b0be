package utils

import (
	"encoding/base64"
	"testing"
)

func TestDecodeDataURL(t *testing.T) {
	raw := []byte("%PDF-1.4 test")
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		payload string
		ext     string
		wantErr bool
	}{
		{name: "pdf data url", payload: "data:application/pdf;base64," + encoded, ext: "pdf"},
		{name: "bare base64 sniffed", payload: encoded, ext: "pdf"},
		{name: "empty", payload: "  ", wantErr: true},
		{name: "missing base64 marker", payload: "data:image/png," + encoded, wantErr: true},
		{name: "invalid base64", payload: "data:image/png;base64,@@@", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ext, err := DecodeDataURL(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != string(raw) {
				t.Fatalf("unexpected data %q", data)
			}
			if ext != tt.ext {
				t.Fatalf("expected ext %q, got %q", tt.ext, ext)
			}
		})
	}
}

func TestExtensionFromMime(t *testing.T) {
	if got := ExtensionFromMime("image/jpeg; charset=binary"); got != "jpg" {
		t.Fatalf("expected jpg, got %q", got)
	}
	if got := ExtensionFromMime(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
