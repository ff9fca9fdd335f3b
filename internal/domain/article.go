package domain

import "time"

// Status is the classification state of an article.
type Status string

// Status constants. An article never returns to StatusRaw once classified.
const (
	StatusRaw       Status = "raw"
	StatusCleaned   Status = "cleaned"
	StatusUncleaned Status = "uncleaned"
)

// Article is one crawled article. RawText (title + body concatenation) is
// immutable after ingest; Tags and Status are owned by the classifier
// write path.
type Article struct {
	ID      string   `db:"id"       json:"id"`
	RawText string   `db:"raw_text" json:"raw_text"`
	Tags    []string `db:"-"        json:"tags"`
	Status  Status   `db:"status"   json:"status"`

	// RuleVersion is the rule-set version used for the last classification
	// pass; zero while the article is still raw. Used for staleness
	// detection by the reclassification scheduler.
	RuleVersion int64 `db:"rule_version" json:"classified_at_rule_version"`

	// NeedsReview marks an article whose classification failed; its
	// previous tags and status are left intact.
	NeedsReview bool `db:"needs_review" json:"needs_review,omitempty"`

	// Sent marks a cleaned article already delivered downstream.
	Sent bool `db:"sent" json:"sent,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Cleaned reports whether the article matched at least one enabled rule
// on its last classification pass.
func (a *Article) Cleaned() bool {
	return a.Status == StatusCleaned
}

// Classified reports whether the article has been through at least one
// classification pass.
func (a *Article) Classified() bool {
	return a.Status != StatusRaw && a.Status != ""
}
