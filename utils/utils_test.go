package utils

import "testing"

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.235001, 1.24},
		{0, 0},
		{10.999, 11},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJoinTranscript(t *testing.T) {
	got := JoinTranscript([]string{"  Hello there. ", "", "General Kenobi!  "})
	if got != "Hello there. General Kenobi!" {
		t.Errorf("JoinTranscript() = %q", got)
	}

	if got := JoinTranscript(nil); got != "" {
		t.Errorf("JoinTranscript(nil) = %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abcdefgh", 3); got != "abc..." {
		t.Errorf("Truncate() = %q", got)
	}
}
