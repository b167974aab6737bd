package rag

import "testing"

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantClean  string
		wantMemory bool
		wantSearch bool
	}{
		{
			name:      "no directives",
			input:     "what is the capital of France",
			wantClean: "what is the capital of France",
		},
		{
			name:       "leading memory directive",
			input:      "@memory what do I usually order",
			wantClean:  "what do I usually order",
			wantMemory: true,
		},
		{
			name:       "leading search directive",
			input:      "@search latest Go release notes",
			wantClean:  "latest Go release notes",
			wantSearch: true,
		},
		{
			name:       "both directives",
			input:      "@memory @search plan a trip like my last one",
			wantClean:  "plan a trip like my last one",
			wantMemory: true,
			wantSearch: true,
		},
		{
			name:       "directive mid-message",
			input:      "remind me @memory about my allergies",
			wantClean:  "remind me about my allergies",
			wantMemory: true,
		},
		{
			name:      "email address is not a directive",
			input:     "mail me at sam@memorylane.example please",
			wantClean: "mail me at sam@memorylane.example please",
		},
		{
			name:      "prefix word is not a directive",
			input:     "read about @memoryfoam mattresses",
			wantClean: "read about @memoryfoam mattresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, d := ParseDirectives(tt.input)
			if clean != tt.wantClean {
				t.Errorf("clean = %q, want %q", clean, tt.wantClean)
			}
			if d.Memory != tt.wantMemory {
				t.Errorf("Memory = %v, want %v", d.Memory, tt.wantMemory)
			}
			if d.Search != tt.wantSearch {
				t.Errorf("Search = %v, want %v", d.Search, tt.wantSearch)
			}
		})
	}
}
