package shield

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if id1 == id2 {
		t.Error("request IDs should be unique")
	}
	if len(id1) != 22 {
		t.Errorf("request ID length = %d, want 22", len(id1))
	}
	if !isValidRequestID(id1) {
		t.Errorf("generated ID %q should pass validation", id1)
	}
}

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"simple", "abc-123_XYZ", true},
		{"uuid style", "d2f1c9a0-1111-4222-8333-444455556666", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 129), false},
		{"max length", strings.Repeat("a", 128), true},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"spaces", "abc def", false},
		{"unicode", "идентификатор", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidRequestID(tt.id); got != tt.want {
				t.Errorf("isValidRequestID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q, want empty", got)
	}

	ctx = WithRequestIDContext(ctx, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q, want req-1", got)
	}
}
