package api

import (
	"time"

	"github.com/orbitwire/newsclean/internal/domain"
)

// CreateRuleRequest represents a request to create a rule. A pattern
// wrapped in slashes is treated as a case-insensitive regular
// expression; anything else matches as a case-insensitive substring.
type CreateRuleRequest struct {
	Pattern string `binding:"required" json:"pattern"`
	Tag     string `binding:"required" json:"tag"`
	Enabled *bool  `json:"enabled"`
}

// UpdateRuleRequest represents a partial rule update. Omitted fields are
// left unchanged.
type UpdateRuleRequest struct {
	Pattern *string `json:"pattern"`
	Tag     *string `json:"tag"`
	Enabled *bool   `json:"enabled"`
}

// RuleResponse represents one rule.
type RuleResponse struct {
	ID        int64     `json:"id"`
	Pattern   string    `json:"pattern"`
	Tag       string    `json:"tag"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RulesListResponse represents the rule set at one version.
type RulesListResponse struct {
	Rules   []RuleResponse `json:"rules"`
	Total   int            `json:"total"`
	Version int64          `json:"version"`
}

// IngestRequest represents a crawled article submission.
type IngestRequest struct {
	RawText   string     `binding:"required" json:"raw_text"`
	CreatedAt *time.Time `json:"created_at"`
}

// IngestResponse acknowledges an accepted article.
type IngestResponse struct {
	ID string `json:"id"`
}

// ArticleResponse represents one article.
type ArticleResponse struct {
	ID          string    `json:"id"`
	RawText     string    `json:"raw_text"`
	Tags        []string  `json:"tags"`
	Status      string    `json:"status"`
	RuleVersion int64     `json:"classified_at_rule_version"`
	NeedsReview bool      `json:"needs_review,omitempty"`
	Sent        bool      `json:"sent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArticlesListResponse represents a list of articles.
type ArticlesListResponse struct {
	Articles []ArticleResponse `json:"articles"`
	Total    int               `json:"total"`
}

// StatsResponse represents the aggregate totals.
type StatsResponse struct {
	TotalRaw     int               `json:"total_raw"`
	TotalCleaned int               `json:"total_cleaned"`
	Pie          PieResponse       `json:"pie"`
	Tags         []domain.TagCount `json:"tags"`
}

// PieResponse is the cleaned/uncleaned split.
type PieResponse struct {
	Cleaned   int `json:"cleaned"`
	Uncleaned int `json:"uncleaned"`
}

// TrendResponse represents the per-day cleaned-article trend.
type TrendResponse struct {
	Days  int                 `json:"days"`
	Trend []domain.TrendPoint `json:"trend"`
}

func toRuleResponse(rule domain.Rule) RuleResponse {
	return RuleResponse{
		ID:        rule.ID,
		Pattern:   rule.Pattern,
		Tag:       rule.Tag,
		Enabled:   rule.Enabled,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

func toArticleResponse(article *domain.Article) ArticleResponse {
	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}
	return ArticleResponse{
		ID:          article.ID,
		RawText:     article.RawText,
		Tags:        tags,
		Status:      string(article.Status),
		RuleVersion: article.RuleVersion,
		NeedsReview: article.NeedsReview,
		Sent:        article.Sent,
		CreatedAt:   article.CreatedAt,
	}
}

func toStatsResponse(snap domain.StatsSnapshot) StatsResponse {
	tags := snap.Tags
	if tags == nil {
		tags = []domain.TagCount{}
	}
	return StatsResponse{
		TotalRaw:     snap.TotalRaw,
		TotalCleaned: snap.TotalCleaned,
		Pie:          PieResponse{Cleaned: snap.Pie.Cleaned, Uncleaned: snap.Pie.Uncleaned},
		Tags:         tags,
	}
}
