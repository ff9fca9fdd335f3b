package domain

// TagCount is one row of the per-tag breakdown. Percent is relative to
// total_cleaned, rounded to two decimals, and 0 when nothing is cleaned.
type TagCount struct {
	Tag     string  `json:"tag"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Pie is the cleaned/uncleaned split for the dashboard pie chart.
type Pie struct {
	Cleaned   int `json:"cleaned"`
	Uncleaned int `json:"uncleaned"`
}

// StatsSnapshot is a consistent point-in-time read of the running
// aggregates. Derived state: recomputable from the article set.
type StatsSnapshot struct {
	TotalRaw     int        `json:"total_raw"`
	TotalCleaned int        `json:"total_cleaned"`
	Pie          Pie        `json:"pie"`
	Tags         []TagCount `json:"tags"`
}

// TrendPoint is one day of the cleaned-article trend. Date is YYYY-MM-DD.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
