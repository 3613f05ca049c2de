// Package catalog defines core types shared across subsystems.
package catalog

import (
	"strings"
	"time"
)

// AppID is the numeric key addressing one catalog entry.
type AppID int64

// AppRecord mirrors one ledger row: durable fetch/classification progress
// for a single identifier.
type AppRecord struct {
	AppID       AppID     `json:"appid"`
	Fetched     bool      `json:"fetched"`
	Classified  bool      `json:"classified"`
	IsGame      bool      `json:"is_game"`
	RetryCount  int       `json:"retry_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// ClassificationResult is the transient output of one successful
// fetch-and-classify. It is proposed by the worker, merged into the
// category stores by the sink, and then discarded.
type ClassificationResult struct {
	AppID       AppID  `json:"appid"`
	Name        string `json:"name"`
	ProductType string `json:"type"`
	// Dimensions holds the names of every configured language/feature
	// dimension this app matched.
	Dimensions  []string  `json:"dimensions,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// IsGame reports whether the classified product is a game.
func (r ClassificationResult) IsGame() bool {
	return strings.EqualFold(r.ProductType, "game")
}

// Matches reports whether the result carries the named dimension.
func (r ClassificationResult) Matches(dimension string) bool {
	for _, d := range r.Dimensions {
		if d == dimension {
			return true
		}
	}
	return false
}

// OutcomeKind is the terminal disposition of one worker call.
type OutcomeKind string

// Outcome kinds recorded against the ledger.
const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeRetryable OutcomeKind = "retryable"
	OutcomePermanent OutcomeKind = "permanent"
)

// Outcome is what the worker reports back to the orchestrator for one id.
type Outcome struct {
	AppID  AppID
	Kind   OutcomeKind
	Reason string
	// Result is set only when Kind is OutcomeSuccess.
	Result *ClassificationResult
	// CoolDown is non-zero when the remote signalled backpressure and the
	// whole worker already paused for this duration.
	CoolDown time.Duration
}

// QuarantineEntry records one permanently failed identifier.
type QuarantineEntry struct {
	AppID     AppID     `json:"id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Report summarizes one orchestrator pass for the surrounding scheduler.
type Report struct {
	RunID       string         `json:"run_id"`
	Pass        string         `json:"pass"`
	Processed   int            `json:"processed"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Quarantined int            `json:"quarantined"`
	StoreTotals map[string]int `json:"store_totals,omitempty"`
}
