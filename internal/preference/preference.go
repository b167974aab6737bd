// Package preference stores per-user personalization settings and renders
// them into a system prompt block.
package preference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultStyle is the response style used when the user has not chosen one.
const DefaultStyle = "Default"

// Styles a user can pick from. Unknown values fall back to DefaultStyle.
var Styles = []string{DefaultStyle, "Concise", "Explanatory", "Formal"}

// Preferences holds a user's personalization settings. Zero values mean the
// user has not set the field.
type Preferences struct {
	Nickname           string
	Occupation         string
	Style              string
	CustomInstructions string
	MoreInfo           string
}

// IsZero reports whether no field carries user-provided content.
func (p Preferences) IsZero() bool {
	return p.Nickname == "" && p.Occupation == "" &&
		(p.Style == "" || p.Style == DefaultStyle) &&
		p.CustomInstructions == "" && p.MoreInfo == ""
}

// PromptBlock renders the preferences as a system prompt section. Returns ""
// when there is nothing to personalize with.
func (p Preferences) PromptBlock() string {
	if p.IsZero() {
		return ""
	}

	var b strings.Builder
	b.WriteString("## About the user\n")
	if p.Nickname != "" {
		fmt.Fprintf(&b, "- Call them %s.\n", p.Nickname)
	}
	if p.Occupation != "" {
		fmt.Fprintf(&b, "- Occupation: %s.\n", p.Occupation)
	}
	if p.Style != "" && p.Style != DefaultStyle {
		fmt.Fprintf(&b, "- Preferred response style: %s.\n", p.Style)
	}
	if p.MoreInfo != "" {
		fmt.Fprintf(&b, "- Additional context: %s\n", p.MoreInfo)
	}
	if p.CustomInstructions != "" {
		fmt.Fprintf(&b, "- Instructions from the user: %s\n", p.CustomInstructions)
	}
	return b.String()
}

// Store persists preferences, one row per user.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a preference store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Get returns the user's preferences. A user with no stored row gets the
// zero value with the default style.
func (s *Store) Get(ctx context.Context, userID string) (Preferences, error) {
	if userID == "" {
		return Preferences{}, fmt.Errorf("user ID is required")
	}

	row := s.pool.QueryRow(ctx, `
		SELECT nickname, occupation, style, custom_instructions, more_info
		FROM user_preferences
		WHERE user_id = $1`,
		userID)

	var p Preferences
	err := row.Scan(&p.Nickname, &p.Occupation, &p.Style, &p.CustomInstructions, &p.MoreInfo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{Style: DefaultStyle}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("fetching preferences: %w", err)
	}
	return p, nil
}

// Put replaces the user's preferences. Unknown styles are coerced to
// DefaultStyle rather than rejected.
func (s *Store) Put(ctx context.Context, userID string, p Preferences) (Preferences, error) {
	if userID == "" {
		return Preferences{}, fmt.Errorf("user ID is required")
	}
	if !validStyle(p.Style) {
		p.Style = DefaultStyle
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, nickname, occupation, style, custom_instructions, more_info)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			nickname = EXCLUDED.nickname,
			occupation = EXCLUDED.occupation,
			style = EXCLUDED.style,
			custom_instructions = EXCLUDED.custom_instructions,
			more_info = EXCLUDED.more_info,
			updated_at = now()`,
		userID, p.Nickname, p.Occupation, p.Style, p.CustomInstructions, p.MoreInfo)
	if err != nil {
		return Preferences{}, fmt.Errorf("saving preferences: %w", err)
	}
	return p, nil
}

func validStyle(style string) bool {
	for _, s := range Styles {
		if s == style {
			return true
		}
	}
	return false
}
