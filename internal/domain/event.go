package domain

import "time"

// ClassificationEvent describes one classification pass over one article.
// It carries the previous and new state so the aggregator can compute a
// correct delta instead of blindly incrementing; replaying the same event
// twice therefore changes nothing.
type ClassificationEvent struct {
	ArticleID      string    `json:"article_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	PreviousTags   []string  `json:"previous_tags"`
	NewTags        []string  `json:"new_tags"`
	RuleVersion    int64     `json:"rule_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// TagDelta returns the symmetric difference between the event's previous
// and new tag sets: tags the article lost and tags it gained.
func (e *ClassificationEvent) TagDelta() (removed, added []string) {
	prev := make(map[string]bool, len(e.PreviousTags))
	for _, t := range e.PreviousTags {
		prev[t] = true
	}
	next := make(map[string]bool, len(e.NewTags))
	for _, t := range e.NewTags {
		next[t] = true
	}
	for t := range prev {
		if !next[t] {
			removed = append(removed, t)
		}
	}
	for t := range next {
		if !prev[t] {
			added = append(added, t)
		}
	}
	return removed, added
}
