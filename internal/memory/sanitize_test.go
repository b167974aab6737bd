package memory

import (
	"strings"
	"testing"
)

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "I prefer dark roast coffee",
			want:  "I prefer dark roast coffee",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  spaced out  ",
			want:  "spaced out",
		},
		{
			name:  "newlines collapse to single space",
			input: "line one\n\nline two",
			want:  "line one line two",
		},
		{
			name:  "control characters removed",
			input: "null\x00byte\x07here",
			want:  "null byte here",
		},
		{
			name:  "tabs and runs of spaces collapse",
			input: "a\t\tb    c",
			want:  "a b c",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: " \n\t ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeContent(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeContent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestChunkContent(t *testing.T) {
	t.Run("short text is a single chunk", func(t *testing.T) {
		text := "I have been learning the violin for three years"
		chunks := chunkContent(text)
		if len(chunks) != 1 {
			t.Fatalf("chunkContent() returned %d chunks, want 1", len(chunks))
		}
		if chunks[0] != text {
			t.Errorf("chunk = %q, want %q", chunks[0], text)
		}
	})

	t.Run("below minimum length is dropped", func(t *testing.T) {
		if chunks := chunkContent("hi there"); chunks != nil {
			t.Errorf("chunkContent() = %v, want nil", chunks)
		}
	})

	t.Run("long text splits at whitespace", func(t *testing.T) {
		word := "wordy "
		text := strings.Repeat(word, 200) // ~1200 chars
		chunks := chunkContent(text)

		if len(chunks) < 2 {
			t.Fatalf("chunkContent() returned %d chunks, want at least 2", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > ChunkSize {
				t.Errorf("chunk %d has length %d, want <= %d", i, len(c), ChunkSize)
			}
			if len(c) < MinContentLength {
				t.Errorf("chunk %d has length %d, want >= %d", i, len(c), MinContentLength)
			}
			if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
				t.Errorf("chunk %d not trimmed: %q", i, c)
			}
		}
	})

	t.Run("chunks preserve all long content", func(t *testing.T) {
		text := strings.Repeat("abcdefghi ", 120) // 1200 chars
		chunks := chunkContent(text)

		joined := strings.Join(chunks, " ")
		if got, want := strings.ReplaceAll(joined, " ", ""), strings.ReplaceAll(text, " ", ""); got != want {
			t.Errorf("chunks lost content: joined length %d, want %d", len(got), len(want))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if chunks := chunkContent(""); chunks != nil {
			t.Errorf("chunkContent(\"\") = %v, want nil", chunks)
		}
	})
}
