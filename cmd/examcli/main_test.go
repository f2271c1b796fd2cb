package main

import (
	"strings"
	"testing"
	"time"

	"github.com/unihub/examsession/internal/session"
)

func TestFinalizeNotice(t *testing.T) {
	if msg := finalizeNotice(session.TriggerTimeout); !strings.Contains(msg, "press enter") {
		t.Fatalf("timeout notice = %q", msg)
	}
	if msg := finalizeNotice(session.TriggerManual); msg != "" {
		t.Fatalf("manual submit produced a notice: %q", msg)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{9 * time.Second, "00:09"},
		{61 * time.Second, "01:01"},
		{10 * time.Minute, "10:00"},
		{90*time.Minute + 30*time.Second, "90:30"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
