package assistant

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "rate limit text", err: errors.New("googleai: rate limit exceeded"), want: ErrRateLimited},
		{name: "http 429", err: errors.New("unexpected status 429"), want: ErrRateLimited},
		{name: "quota", err: errors.New("quota exceeded for project"), want: ErrRateLimited},
		{name: "resource exhausted", err: errors.New("rpc error: code = ResourceExhausted desc = ..."), want: ErrRateLimited},
		{name: "context length", err: errors.New("context_length_exceeded: reduce input"), want: ErrContextTooLarge},
		{name: "token limit", err: errors.New("input exceeds token limit"), want: ErrContextTooLarge},
		{name: "http 503", err: errors.New("server returned 503"), want: ErrUnavailable},
		{name: "overloaded", err: errors.New("model is overloaded"), want: ErrUnavailable},
		{name: "deadline", err: errors.New("context deadline exceeded"), want: ErrUnavailable},
		{name: "already classified", err: fmt.Errorf("wrapped: %w", ErrRateLimited), want: ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("Classify(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPassesThroughUnknown(t *testing.T) {
	err := errors.New("something novel")
	if got := Classify(err); got != err {
		t.Errorf("Classify() = %v, want original error", got)
	}
}
