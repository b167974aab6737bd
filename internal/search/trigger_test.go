package search

import "testing"

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"what's the latest Go release", true},
		{"any news about the election", true},
		{"what is happening in Taiwan today", true},
		{"current price of bitcoin", true},
		{"weather in Tokyo tomorrow", true},
		{"search the web for pgvector benchmarks", true},
		{"when was Go 1.0 released", true},

		{"explain how goroutines work", false},
		{"write me a haiku about autumn", false},
		{"what did I tell you about my dog", false},
		{"refactor this function please", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := ShouldTrigger(tt.message); got != tt.want {
				t.Errorf("ShouldTrigger(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
