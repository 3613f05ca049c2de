package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/docstore"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestSink(t *testing.T, dir string) (*Sink, *fixedClock) {
	t.Helper()
	clk := &fixedClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(Config{
		Dir:                 dir,
		Dimensions:          []string{"chinese_games", "card_games"},
		QuarantineRetention: 30 * 24 * time.Hour,
	}, clk, zap.NewNop())
	require.NoError(t, err)
	return s, clk
}

func result(id catalog.AppID, dims ...string) catalog.ClassificationResult {
	return catalog.ClassificationResult{
		AppID:       id,
		Name:        "app",
		ProductType: "game",
		Dimensions:  dims,
		LastChecked: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMergeRoutesByDimension(t *testing.T) {
	t.Parallel()

	s, _ := newTestSink(t, t.TempDir())

	require.NoError(t, s.Merge([]catalog.ClassificationResult{
		result(1, "chinese_games"),
		result(2), // classified but matches no store
		result(3, "chinese_games", "card_games"),
	}))

	totals := s.Totals()
	require.Equal(t, 2, totals["chinese_games"])
	require.Equal(t, 1, totals["card_games"])
}

func TestFlushCreatesStoreFileWithVersionOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _ := newTestSink(t, dir)

	path := filepath.Join(dir, "chinese_games.json")
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "store file must not exist before first flush")

	require.NoError(t, s.Merge([]catalog.ClassificationResult{result(1, "chinese_games")}))
	require.NoError(t, s.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Metadata docstore.Metadata                        `json:"_metadata"`
		Entries  map[string]catalog.ClassificationResult `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, 1, doc.Metadata.Version)
	require.Len(t, doc.Entries, 1)
	require.Equal(t, catalog.AppID(1), doc.Entries["1"].AppID)
}

func TestMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, clk := newTestSink(t, dir)

	r := result(1, "chinese_games")
	require.NoError(t, s.Merge([]catalog.ClassificationResult{r}))
	require.NoError(t, s.Flush())

	first, err := os.ReadFile(filepath.Join(dir, "chinese_games.json"))
	require.NoError(t, err)

	clk.now = clk.now.Add(time.Hour)
	require.NoError(t, s.Merge([]catalog.ClassificationResult{r}))
	require.NoError(t, s.Flush())

	second, err := os.ReadFile(filepath.Join(dir, "chinese_games.json"))
	require.NoError(t, err)

	var docA, docB struct {
		Metadata docstore.Metadata                        `json:"_metadata"`
		Entries  map[string]catalog.ClassificationResult `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(first, &docA))
	require.NoError(t, json.Unmarshal(second, &docB))
	require.Equal(t, docA.Entries, docB.Entries)
	require.True(t, docB.Metadata.Updated.After(docA.Metadata.Updated))
}

func TestMergeSurvivesReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _ := newTestSink(t, dir)
	require.NoError(t, s.Merge([]catalog.ClassificationResult{result(9, "card_games")}))
	require.NoError(t, s.Flush())

	reloaded, _ := newTestSink(t, dir)
	require.Equal(t, 1, reloaded.Totals()["card_games"])
}

func TestQuarantineDeduplicatesByID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, clk := newTestSink(t, dir)

	entry := catalog.QuarantineEntry{AppID: 5, Reason: "parse-error", Timestamp: clk.now}
	require.NoError(t, s.Quarantine(entry))
	require.NoError(t, s.Quarantine(entry))
	require.Equal(t, 1, s.QuarantineCount())

	require.NoError(t, s.Flush())

	raw, err := os.ReadFile(filepath.Join(dir, "quarantine.json"))
	require.NoError(t, err)
	var doc struct {
		InvalidOrFailed []catalog.QuarantineEntry `json:"invalid_or_failed"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.InvalidOrFailed, 1)
	require.Equal(t, "parse-error", doc.InvalidOrFailed[0].Reason)
}

func TestQuarantinePrunesExpiredEntriesOnLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, clk := newTestSink(t, dir)

	old := catalog.QuarantineEntry{AppID: 1, Reason: "parse-error", Timestamp: clk.now.Add(-40 * 24 * time.Hour)}
	fresh := catalog.QuarantineEntry{AppID: 2, Reason: "api-reported-failure", Timestamp: clk.now.Add(-time.Hour)}
	require.NoError(t, s.Quarantine(old))
	require.NoError(t, s.Quarantine(fresh))
	require.NoError(t, s.Flush())

	reloaded, _ := newTestSink(t, dir)
	require.Equal(t, 1, reloaded.QuarantineCount())
	require.False(t, reloaded.quarantine.Contains(1))
	require.True(t, reloaded.quarantine.Contains(2))
}

func TestRecordProduct(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _ := newTestSink(t, dir)

	s.RecordProduct(10, "game")
	s.RecordProduct(11, "dlc")
	require.Equal(t, 2, s.ProductCount())
	require.NoError(t, s.Flush())

	raw, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	var doc struct {
		Entries map[string]string `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "game", doc.Entries["10"])
	require.Equal(t, "dlc", doc.Entries["11"])
}
