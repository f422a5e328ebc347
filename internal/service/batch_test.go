package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/store"
)

type fakeEnricher struct {
	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	failFor     map[string]bool
	degradeFor  map[string]bool
}

func (f *fakeEnricher) ProcessOne(ctx context.Context, key model.BillKey) ProcessResult {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.calls = append(f.calls, key.BillNumber())
	f.mu.Unlock()

	result := ProcessResult{BillNumber: key.BillNumber(), Congress: key.Congress}
	f.mu.Lock()
	if f.failFor[key.BillNumber()] {
		result.Err = fmt.Errorf("simulated failure")
	}
	if f.degradeFor[key.BillNumber()] {
		result.SubErrors++
	}
	f.inFlight--
	f.mu.Unlock()
	return result
}

func testBatchProcessor(enricher BillEnricher) *BatchProcessor {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewBatchProcessor(nil, enricher, logger)
}

func TestRunBatchProcessesEveryRef(t *testing.T) {
	enricher := &fakeEnricher{}
	b := testBatchProcessor(enricher)

	refs := []store.BillRef{
		{BillNumber: "HR1", Congress: 117},
		{BillNumber: "HR2", Congress: 117},
		{BillNumber: "S3", Congress: 117},
	}

	stats := &BatchStats{}
	b.runBatch(context.Background(), refs, 2, stats)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.ElementsMatch(t, []string{"HR1", "HR2", "S3"}, enricher.calls)
}

func TestRunBatchCountsFailuresWithoutAborting(t *testing.T) {
	enricher := &fakeEnricher{failFor: map[string]bool{"HR2": true}}
	b := testBatchProcessor(enricher)

	refs := []store.BillRef{
		{BillNumber: "HR1", Congress: 117},
		{BillNumber: "HR2", Congress: 117},
		{BillNumber: "HR3", Congress: 117},
	}

	stats := &BatchStats{}
	b.runBatch(context.Background(), refs, 1, stats)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
}

func TestRunBatchCountsSubresourceFailures(t *testing.T) {
	enricher := &fakeEnricher{degradeFor: map[string]bool{"HR2": true}}
	b := testBatchProcessor(enricher)

	refs := []store.BillRef{
		{BillNumber: "HR1", Congress: 117},
		{BillNumber: "HR2", Congress: 117},
	}

	stats := &BatchStats{}
	b.runBatch(context.Background(), refs, 1, stats)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed, "a bill whose sub-resource replace failed still has its gap")
}

func TestRunBatchSequentialWithOneWorker(t *testing.T) {
	enricher := &fakeEnricher{}
	b := testBatchProcessor(enricher)

	refs := make([]store.BillRef, 10)
	for i := range refs {
		refs[i] = store.BillRef{BillNumber: fmt.Sprintf("HR%d", i+1), Congress: 118}
	}

	stats := &BatchStats{}
	b.runBatch(context.Background(), refs, 1, stats)

	assert.Equal(t, 10, stats.Processed)
	assert.Equal(t, 1, enricher.maxInFlight, "one worker must never overlap calls")
}

func TestBackfillRejectsSummariesCategory(t *testing.T) {
	b := testBatchProcessor(&fakeEnricher{})

	_, err := b.Backfill(context.Background(), CategorySummaries, BackfillOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize")
	assert.NotContains(t, BackfillCategories, CategorySummaries)
}

func TestSplitHistorical(t *testing.T) {
	refs := []store.BillRef{
		{BillNumber: "HR21", Congress: 117},
		{BillNumber: "HR5", Congress: 11},
		{BillNumber: "S2", Congress: 42},
		{BillNumber: "S9", Congress: 118},
	}

	report := splitHistorical(refs)
	require.Len(t, report.Modern, 2)
	require.Len(t, report.Historical, 2)
	assert.Equal(t, 4, report.Total())

	// Modern refs sort newest congress first.
	assert.Equal(t, "S9", report.Modern[0].BillNumber)
	assert.Equal(t, "HR21", report.Modern[1].BillNumber)
}

func TestWorklistUnknownCategory(t *testing.T) {
	b := testBatchProcessor(&fakeEnricher{})
	_, err := b.worklist(context.Background(), "nonsense", 10)
	assert.Error(t, err)
}

func TestBackfillRejectsBadBillNumbers(t *testing.T) {
	b := testBatchProcessor(&fakeEnricher{})

	stats := &BatchStats{}
	b.runBatch(context.Background(), []store.BillRef{{BillNumber: "???", Congress: 117}}, 1, stats)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
}
