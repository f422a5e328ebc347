package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
	"github.com/jharding/legistrack/internal/store"
)

type fakeBillSource struct {
	bill         *model.Bill
	linksUpdated bool
	committed    bool
	summary      string
	tagIDs       []int
}

func (f *fakeBillSource) GetByNumber(ctx context.Context, billNumber string) (*model.Bill, error) {
	// Mirrors the store contract: a missing row is (nil, nil), not an error.
	return f.bill, nil
}

func (f *fakeBillSource) MissingSummaries(ctx context.Context, limit int) ([]store.BillRef, error) {
	return []store.BillRef{{BillNumber: f.bill.BillNumber, Congress: f.bill.Congress}}, nil
}

func (f *fakeBillSource) UpdateLinks(ctx context.Context, billNumber string, textLink, lawLink sql.NullString) error {
	f.linksUpdated = true
	return nil
}

func (f *fakeBillSource) CommitSummary(ctx context.Context, billNumber, summary string, textLink, lawLink sql.NullString, tagIDs []int) error {
	f.committed = true
	f.summary = summary
	f.tagIDs = tagIDs
	return nil
}

type fakeTagSource struct {
	vocabulary map[string]map[string]int
	queued     []string
}

func (f *fakeTagSource) LoadVocabulary(ctx context.Context) (map[string]map[string]int, error) {
	return f.vocabulary, nil
}

func (f *fakeTagSource) QueueForReview(ctx context.Context, typeName, name, billNumber string) error {
	f.queued = append(f.queued, typeName+"/"+name)
	return nil
}

type fakeVersionFetcher struct{}

func (fakeVersionFetcher) Get(ctx context.Context, path string, params url.Values) (map[string]json.RawMessage, error) {
	versions := `[{"type": "Introduced in House", "date": "2021-01-04T05:00:00Z",
		"formats": [{"type": "Formatted XML", "url": "https://example.gov/hr21ih.xml"}]}]`
	return map[string]json.RawMessage{"textVersions": json.RawMessage(versions)}, nil
}

// stubProcessor returns canned provider payloads.
type stubProcessor struct {
	summaryRaw json.RawMessage
	tagsRaw    json.RawMessage
}

func (s *stubProcessor) GenerateSummary(ctx context.Context, billText string) (json.RawMessage, error) {
	return s.summaryRaw, nil
}

func (s *stubProcessor) ExtractTags(ctx context.Context, billText string, allowedCategories []string) (json.RawMessage, error) {
	return s.tagsRaw, nil
}

func (s *stubProcessor) ValidateResponse(raw json.RawMessage) (*Result, error) {
	return validateResponse(raw)
}

func testPipeline(t *testing.T, bills *fakeBillSource, tags *fakeTagSource, processor Processor, cfg config.AIConfig) *Pipeline {
	t.Helper()
	logger := discardLogger()
	raw := rawstore.New(t.TempDir(), 0, logger)
	// Pre-seed the document cache so no download happens.
	_, err := raw.SaveBytes([]byte(sampleBillXML), "bill", "117", "HR", "21", "text.xml")
	require.NoError(t, err)
	return NewPipeline(bills, tags, fakeVersionFetcher{}, raw, processor, cfg, logger)
}

func testBill() *model.Bill {
	return &model.Bill{
		ID:         1,
		BillNumber: "HR21",
		BillType:   "HR",
		Congress:   117,
		Title:      "Veterans Access Act",
	}
}

func TestPipelineCommitsValidResponse(t *testing.T) {
	bills := &fakeBillSource{bill: testBill()}
	tags := &fakeTagSource{vocabulary: map[string]map[string]int{
		"Policy Area": {"health": 7},
	}}
	processor := &stubProcessor{
		summaryRaw: json.RawMessage(`{"summary": "Expands veterans' access to care.", "tags": []}`),
		tagsRaw:    json.RawMessage(`{"summary": "Tag pass.", "tags": [{"category": "Policy Area", "value": "Health"}]}`),
	}
	p := testPipeline(t, bills, tags, processor, config.AIConfig{})

	stats, err := p.Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Committed)
	assert.Zero(t, stats.Failed)
	assert.True(t, bills.linksUpdated)
	assert.True(t, bills.committed)
	assert.Equal(t, "Expands veterans' access to care.", bills.summary)
	assert.Equal(t, []int{7}, bills.tagIDs)
}

func TestPipelineRejectsResponseMissingTags(t *testing.T) {
	bills := &fakeBillSource{bill: testBill()}
	tags := &fakeTagSource{vocabulary: map[string]map[string]int{}}
	processor := &stubProcessor{
		summaryRaw: json.RawMessage(`{"summary": "Looks fine."}`),
	}
	p := testPipeline(t, bills, tags, processor, config.AIConfig{})

	validator := NewTagValidator(tags.vocabulary, discardLogger())
	outcome := p.ProcessBill(context.Background(), "HR21", validator)

	require.Error(t, outcome.Err)
	assert.Equal(t, StageFailed, outcome.Stage)
	assert.Equal(t, StageResponseValidated, outcome.FailedAt)
	assert.False(t, bills.committed)
}

func TestPipelineQueuesUnknownTags(t *testing.T) {
	bills := &fakeBillSource{bill: testBill()}
	tags := &fakeTagSource{vocabulary: map[string]map[string]int{
		"Policy Area": {"health": 7},
	}}
	processor := &stubProcessor{
		summaryRaw: json.RawMessage(`{"summary": "Summary.", "tags": []}`),
		tagsRaw: json.RawMessage(`{"summary": "Tag pass.", "tags": [
			{"category": "Policy Area", "value": "Health"},
			{"category": "Policy Area", "value": "Space Lasers"}]}`),
	}
	p := testPipeline(t, bills, tags, processor, config.AIConfig{UnknownTags: config.UnknownTagsQueue})

	validator := NewTagValidator(tags.vocabulary, discardLogger())
	outcome := p.ProcessBill(context.Background(), "HR21", validator)

	require.NoError(t, outcome.Err)
	assert.Equal(t, StageCommitted, outcome.Stage)
	assert.Equal(t, []int{7}, bills.tagIDs)
	assert.Equal(t, []string{"Policy Area/Space Lasers"}, tags.queued)
}

func TestPipelineFailsWhenBillNotInStore(t *testing.T) {
	bills := &fakeBillSource{}
	tags := &fakeTagSource{vocabulary: map[string]map[string]int{}}
	p := testPipeline(t, bills, tags, &stubProcessor{}, config.AIConfig{})

	validator := NewTagValidator(tags.vocabulary, discardLogger())
	outcome := p.ProcessBill(context.Background(), "HR999", validator)

	require.Error(t, outcome.Err)
	assert.Equal(t, StageFailed, outcome.Stage)
	assert.Equal(t, StagePending, outcome.FailedAt)
	assert.False(t, bills.committed)
}

func TestPipelineFailsOnMalformedDocument(t *testing.T) {
	bills := &fakeBillSource{bill: testBill()}
	tags := &fakeTagSource{vocabulary: map[string]map[string]int{}}
	processor := &stubProcessor{}

	logger := discardLogger()
	raw := rawstore.New(t.TempDir(), 0, logger)
	_, err := raw.SaveBytes([]byte("<bill><section>unclosed"), "bill", "117", "HR", "21", "text.xml")
	require.NoError(t, err)
	p := NewPipeline(bills, tags, fakeVersionFetcher{}, raw, processor, config.AIConfig{}, logger)

	validator := NewTagValidator(tags.vocabulary, discardLogger())
	outcome := p.ProcessBill(context.Background(), "HR21", validator)

	require.Error(t, outcome.Err)
	assert.Equal(t, StageTextExtracted, outcome.FailedAt)
	assert.False(t, bills.committed)
}
