package domain

import "time"

// Rule classifies articles: any article whose text matches Pattern is
// tagged with Tag. Patterns are case-insensitive; a pattern wrapped in
// slashes (for example "/launch(ed)?/") is a regular expression, anything
// else is a literal substring.
type Rule struct {
	ID        int64     `db:"id"         json:"id"`
	Pattern   string    `db:"pattern"    json:"pattern"`
	Tag       string    `db:"tag"        json:"tag"`
	Enabled   bool      `db:"enabled"    json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RulePatch is a partial update of a rule. Nil fields are left unchanged.
type RulePatch struct {
	Pattern *string
	Tag     *string
	Enabled *bool
}
