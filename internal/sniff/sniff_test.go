package sniff

import "testing"

func TestDetectPNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if got := Detect(png, ""); got != "image/png" {
		t.Errorf("Detect(png) = %q, want image/png", got)
	}
}

func TestDetectFallsBackToDeclared(t *testing.T) {
	ambiguous := []byte{0, 0, 0, 0}
	if got := Detect(ambiguous, "application/custom"); got != "application/custom" {
		t.Errorf("Detect(ambiguous, declared) = %q, want application/custom", got)
	}
}

func TestDetectFallsBackToOctetStream(t *testing.T) {
	if got := Detect(nil, ""); got != "application/octet-stream" {
		t.Errorf("Detect(nil, \"\") = %q, want application/octet-stream", got)
	}
}
