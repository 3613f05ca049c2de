// Package sink merges classification results into the durable category
// stores and owns the quarantine and products documents. It is the single
// source of truth for what was learned; the ledger tracks what was tried.
package sink

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/docstore"
	"github.com/lmei/steamscout/internal/metrics"
)

// Config controls where documents live and how long quarantine entries last.
type Config struct {
	// Dir is the data directory holding all JSON documents.
	Dir string
	// Dimensions lists the category store names, one file per dimension.
	Dimensions []string
	// QuarantineRetention prunes quarantine entries older than this on load.
	QuarantineRetention time.Duration
}

// Sink owns one category store per classification dimension plus the
// products and quarantine documents. All writes stay in memory until Flush.
type Sink struct {
	stores     map[string]*docstore.Store[catalog.ClassificationResult]
	order      []string
	products   *docstore.Store[string]
	quarantine *Quarantine
	logger     *zap.Logger
}

// New opens (or lazily creates) every document under cfg.Dir.
func New(cfg Config, clock docstore.Clock, logger *zap.Logger) (*Sink, error) {
	s := &Sink{
		stores: make(map[string]*docstore.Store[catalog.ClassificationResult], len(cfg.Dimensions)),
		order:  append([]string(nil), cfg.Dimensions...),
		logger: logger,
	}

	for _, name := range cfg.Dimensions {
		path := filepath.Join(cfg.Dir, name+".json")
		store, err := docstore.Open[catalog.ClassificationResult](path, clock)
		if err != nil {
			return nil, fmt.Errorf("open category store %s: %w: %w", name, catalog.ErrPersistence, err)
		}
		s.stores[name] = store
	}

	products, err := docstore.Open[string](filepath.Join(cfg.Dir, "products.json"), clock)
	if err != nil {
		return nil, fmt.Errorf("open products store: %w: %w", catalog.ErrPersistence, err)
	}
	s.products = products

	quarantine, err := OpenQuarantine(filepath.Join(cfg.Dir, "quarantine.json"), cfg.QuarantineRetention, clock)
	if err != nil {
		return nil, fmt.Errorf("open quarantine: %w: %w", catalog.ErrPersistence, err)
	}
	s.quarantine = quarantine

	return s, nil
}

// Merge upserts each result into every category store whose dimension it
// matched. Re-merging an identical result changes nothing but the stores'
// updated timestamps.
func (s *Sink) Merge(results []catalog.ClassificationResult) error {
	for _, result := range results {
		key := strconv.FormatInt(int64(result.AppID), 10)
		for _, name := range s.order {
			if !result.Matches(name) {
				continue
			}
			s.stores[name].Upsert(key, result)
		}
	}
	return nil
}

// RecordProduct notes the product type discovered for id.
func (s *Sink) RecordProduct(id catalog.AppID, productType string) {
	s.products.Upsert(strconv.FormatInt(int64(id), 10), productType)
}

// Quarantine records a permanently failed identifier, once.
func (s *Sink) Quarantine(entry catalog.QuarantineEntry) error {
	if s.quarantine.Add(entry) {
		metrics.IncQuarantined()
		s.logger.Warn("identifier quarantined",
			zap.Int64("appid", int64(entry.AppID)),
			zap.String("reason", entry.Reason),
		)
	}
	return nil
}

// Totals reports the entry count per category store.
func (s *Sink) Totals() map[string]int {
	totals := make(map[string]int, len(s.order))
	for _, name := range s.order {
		totals[name] = s.stores[name].Len()
	}
	return totals
}

// ProductCount returns the number of discovered products.
func (s *Sink) ProductCount() int {
	return s.products.Len()
}

// QuarantineCount returns the number of quarantined identifiers.
func (s *Sink) QuarantineCount() int {
	return s.quarantine.Len()
}

// Flush persists every dirty document. Each store is written atomically;
// a failure surfaces but already-written stores stay written.
func (s *Sink) Flush() error {
	for _, name := range s.order {
		store := s.stores[name]
		if err := store.Flush(); err != nil {
			return fmt.Errorf("flush category store %s: %w: %w", name, catalog.ErrPersistence, err)
		}
		metrics.SetStoreEntries(name, store.Len())
	}
	if err := s.products.Flush(); err != nil {
		return fmt.Errorf("flush products store: %w: %w", catalog.ErrPersistence, err)
	}
	if err := s.quarantine.Flush(); err != nil {
		return fmt.Errorf("flush quarantine: %w: %w", catalog.ErrPersistence, err)
	}
	return nil
}
