package catalog

import (
	"context"
	"time"
)

// Ledger persists per-identifier fetch/classification progress. It is the
// single source of truth for what has been attempted.
type Ledger interface {
	// Seed inserts ids that are not yet known, returning the number added.
	Seed(ctx context.Context, ids []AppID) (int, error)
	// Count returns the number of known identifiers.
	Count(ctx context.Context) (int64, error)
	// SelectDiscoveryBatch returns up to n ids that have never been fetched,
	// ascending.
	SelectDiscoveryBatch(ctx context.Context, n int) ([]AppID, error)
	// SelectClassifyBatch returns up to n fetched game ids whose
	// classification is missing or older than staleBefore, ascending.
	SelectClassifyBatch(ctx context.Context, n int, staleBefore time.Time) ([]AppID, error)
	// MarkFetched records a successful detail fetch for id.
	MarkFetched(ctx context.Context, id AppID, isGame bool) error
	// MarkClassified records a successful classification, resetting the
	// retry counter.
	MarkClassified(ctx context.Context, id AppID, isGame bool) error
	// RecordFailure bumps the retry counter and, once it reaches the
	// ceiling, forces the row closed. Returns the new count and whether the
	// ceiling closed the row.
	RecordFailure(ctx context.Context, id AppID) (retries int, closed bool, err error)
}

// DetailClient fetches the per-id detail payload from the remote API.
type DetailClient interface {
	// AppDetails returns the attribute bag for id, or an error from the
	// failure taxonomy in errors.go.
	AppDetails(ctx context.Context, id AppID) (AppDetails, error)
}

// ListingClient fetches the full identifier universe once, to seed the ledger.
type ListingClient interface {
	AppList(ctx context.Context) ([]AppID, error)
}

// Limiter bounds outbound request rate.
type Limiter interface {
	// AwaitSlot blocks until a request may be issued, respecting the context.
	AwaitSlot(ctx context.Context) error
	// RecordLatency feeds the most recent observed response time back into
	// the slow-server heuristic.
	RecordLatency(d time.Duration)
}

// Sink merges proposed classification results into the durable category
// stores and owns the quarantine document.
type Sink interface {
	Merge(results []ClassificationResult) error
	Quarantine(entry QuarantineEntry) error
	// Totals reports the current entry count per category store.
	Totals() map[string]int
	// Flush persists all dirty documents.
	Flush() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// AppDetails is the loosely-typed attribute bag returned by the detail
// endpoint for one id. Only the fields classification needs are decoded;
// everything else is ignored.
type AppDetails struct {
	Name               string
	Type               string
	SupportedLanguages string
	// Languages is a secondary free-form language field some entries carry.
	Languages  string
	Categories []Category
}

// Category is one entry of the detail payload's category list.
type Category struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}
