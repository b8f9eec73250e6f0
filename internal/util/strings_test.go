package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "string shorter than max",
			input:  "short",
			maxLen: 10,
			want:   "short",
		},
		{
			name:   "string equal to max",
			input:  "exact",
			maxLen: 5,
			want:   "exact",
		},
		{
			name:   "string longer than max",
			input:  "203.0.113.7:55012",
			maxLen: 8,
			want:   "203.0.11",
		},
		{
			name:   "zero max",
			input:  "anything",
			maxLen: 0,
			want:   "",
		},
		{
			name:   "negative max",
			input:  "anything",
			maxLen: -1,
			want:   "",
		},
		{
			name:   "empty string",
			input:  "",
			maxLen: 5,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
