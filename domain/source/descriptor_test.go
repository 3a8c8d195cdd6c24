package source

import (
	"image"
	"testing"
)

func TestDescriptorLabels(t *testing.T) {
	tests := []struct {
		desc Descriptor
		want string
	}{
		{VideoFile{Path: "/media/talks/intro.mp4"}, "intro.mp4"},
		{Window{Handle: 0xab, Title: "Slides"}, "Slides"},
		{Window{Handle: 0xab}, "window 0xab"},
		{Monitor{Left: 10, Top: 20, Width: 1920, Height: 1080}, "monitor 1920x1080@10,20"},
	}
	for _, tt := range tests {
		if got := tt.desc.Label(); got != tt.want {
			t.Fatalf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestMonitorRect(t *testing.T) {
	m := Monitor{Left: 100, Top: 50, Width: 640, Height: 480}
	want := image.Rect(100, 50, 740, 530)
	if got := m.Rect(); got != want {
		t.Fatalf("Rect = %v, want %v", got, want)
	}
}

func TestStateStrings(t *testing.T) {
	if got := Playing.String(); got != "playing" {
		t.Fatalf("Playing = %q", got)
	}
	if got := Capturing.String(); got != "capturing" {
		t.Fatalf("Capturing = %q", got)
	}
}
