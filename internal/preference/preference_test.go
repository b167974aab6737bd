package preference

import (
	"strings"
	"testing"
)

func TestPromptBlock(t *testing.T) {
	tests := []struct {
		name     string
		prefs    Preferences
		wantEmpty bool
		contains []string
		excludes []string
	}{
		{
			name:      "zero preferences render nothing",
			prefs:     Preferences{},
			wantEmpty: true,
		},
		{
			name:      "default style alone renders nothing",
			prefs:     Preferences{Style: DefaultStyle},
			wantEmpty: true,
		},
		{
			name:     "nickname only",
			prefs:    Preferences{Nickname: "Sam"},
			contains: []string{"## About the user", "Call them Sam."},
			excludes: []string{"Occupation", "style"},
		},
		{
			name: "all fields",
			prefs: Preferences{
				Nickname:           "Sam",
				Occupation:         "marine biologist",
				Style:              "Concise",
				CustomInstructions: "Always use SI units.",
				MoreInfo:           "Works night shifts.",
			},
			contains: []string{
				"Call them Sam.",
				"Occupation: marine biologist.",
				"Preferred response style: Concise.",
				"Always use SI units.",
				"Works night shifts.",
			},
		},
		{
			name:     "default style suppressed when other fields set",
			prefs:    Preferences{Nickname: "Sam", Style: DefaultStyle},
			contains: []string{"Call them Sam."},
			excludes: []string{"response style"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.prefs.PromptBlock()
			if tt.wantEmpty {
				if got != "" {
					t.Fatalf("PromptBlock() = %q, want empty", got)
				}
				return
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("PromptBlock() missing %q:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("PromptBlock() unexpectedly contains %q:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestIsZero(t *testing.T) {
	if !(Preferences{}).IsZero() {
		t.Error("empty Preferences should be zero")
	}
	if !(Preferences{Style: DefaultStyle}).IsZero() {
		t.Error("default style only should be zero")
	}
	if (Preferences{MoreInfo: "x"}).IsZero() {
		t.Error("MoreInfo set should not be zero")
	}
}

func TestValidStyle(t *testing.T) {
	for _, style := range Styles {
		if !validStyle(style) {
			t.Errorf("validStyle(%q) = false, want true", style)
		}
	}
	if validStyle("Sarcastic") {
		t.Error("validStyle(Sarcastic) = true, want false")
	}
}
