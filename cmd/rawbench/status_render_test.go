package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("wget", statusWarn, "using net/http", false)
	if !strings.Contains(plain, "[WARN] using net/http") || strings.Contains(plain, "\x1b[") {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("wget", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected colored line, got %q", colored)
	}
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatBytes(2048); got != "2.0 KiB" {
		t.Fatalf("formatBytes = %q", got)
	}
	cases := map[time.Duration]string{
		0:                "-",
		30 * time.Second: "30s",
		5 * time.Minute:  "5m",
		3 * time.Hour:    "3h",
		50 * time.Hour:   "2d",
	}
	for d, want := range cases {
		if got := formatDuration(d); got != want {
			t.Fatalf("formatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
