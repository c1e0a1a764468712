// Package types contains common read shapes used across the application.
package types

// Entry represents a leaderboard entry.
type Entry struct {
	Rank          int     `json:"rank"`
	Attester      string  `json:"attester"`
	AccuracyScore float64 `json:"accuracy_score"`
}

// Score is the cross-market accuracy figure for a single forecaster.
type Score struct {
	Attester      string  `json:"attester"`
	AccuracyScore float64 `json:"accuracy_score"`
	MeanTwError   float64 `json:"mean_tw_error"`
	Markets       int     `json:"markets"`
}

// RankResult answers a rank-by-address query. Rank and AccuracyScore are
// nil when the attester has no scored markets.
type RankResult struct {
	Attester         string   `json:"attester"`
	AccuracyScore    *float64 `json:"accuracy_score"`
	Rank             *int     `json:"rank"`
	TotalForecasters int      `json:"total_forecasters"`
}
