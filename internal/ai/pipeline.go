package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
	"github.com/jharding/legistrack/internal/service"
	"github.com/jharding/legistrack/internal/store"
)

// Stage identifies where a bill sits in the summarization pipeline. Each bill
// walks the stages in order; FAILED is terminal and reachable from any of
// them. The pipeline keeps no persistent stage column, so a failed bill is
// simply retraversed from the start on the next run.
type Stage string

const (
	StagePending           Stage = "PENDING"
	StageTextLinkResolved  Stage = "TEXT_LINK_RESOLVED"
	StageXMLDownloaded     Stage = "XML_DOWNLOADED"
	StageTextExtracted     Stage = "TEXT_EXTRACTED"
	StageResponseValidated Stage = "AI_RESPONSE_VALIDATED"
	StageTagsNormalized    Stage = "TAGS_NORMALIZED"
	StageCommitted         Stage = "COMMITTED"
	StageFailed            Stage = "FAILED"
)

// billSource is the slice of the bill store the pipeline needs.
type billSource interface {
	GetByNumber(ctx context.Context, billNumber string) (*model.Bill, error)
	MissingSummaries(ctx context.Context, limit int) ([]store.BillRef, error)
	UpdateLinks(ctx context.Context, billNumber string, textLink, lawLink sql.NullString) error
	CommitSummary(ctx context.Context, billNumber, summary string, textLink, lawLink sql.NullString, tagIDs []int) error
}

// tagSource is the slice of the tag store the pipeline needs.
type tagSource interface {
	LoadVocabulary(ctx context.Context) (map[string]map[string]int, error)
	QueueForReview(ctx context.Context, typeName, name, billNumber string) error
}

// versionFetcher queries the upstream text-versions sub-resource.
type versionFetcher interface {
	Get(ctx context.Context, path string, params url.Values) (map[string]json.RawMessage, error)
}

// Outcome is the result of one bill's traversal.
type Outcome struct {
	BillNumber string
	Stage      Stage
	FailedAt   Stage
	Err        error
}

// PipelineStats accumulates one run's tallies.
type PipelineStats struct {
	Worklist  int
	Committed int
	Failed    int
}

// Pipeline drives bills from missing-summary through committed summary and
// tags. Document downloads go through a plain HTTP client, not the upstream
// API client, because text links point at a different host and must not carry
// the API key.
type Pipeline struct {
	bills       billSource
	tags        tagSource
	client      versionFetcher
	raw         *rawstore.Store
	processor   Processor
	httpClient  *http.Client
	unknownTags string
	logger      *slog.Logger
}

func NewPipeline(bills billSource, tags tagSource, client versionFetcher, raw *rawstore.Store, processor Processor, cfg config.AIConfig, logger *slog.Logger) *Pipeline {
	unknownTags := cfg.UnknownTags
	if unknownTags == "" {
		unknownTags = config.UnknownTagsReject
	}
	return &Pipeline{
		bills:       bills,
		tags:        tags,
		client:      client,
		raw:         raw,
		processor:   processor,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		unknownTags: unknownTags,
		logger:      logger,
	}
}

// Run drains the missing-summary worklist, up to limit bills.
func (p *Pipeline) Run(ctx context.Context, limit int) (*PipelineStats, error) {
	refs, err := p.bills.MissingSummaries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load summary worklist: %w", err)
	}

	vocabulary, err := p.tags.LoadVocabulary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tag vocabulary: %w", err)
	}
	validator := NewTagValidator(vocabulary, p.logger)

	stats := &PipelineStats{Worklist: len(refs)}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome := p.ProcessBill(ctx, ref.BillNumber, validator)
		if outcome.Err != nil {
			stats.Failed++
			p.logger.Error("summarization failed",
				"bill", outcome.BillNumber, "stage", outcome.FailedAt, "err", outcome.Err)
			continue
		}
		stats.Committed++
		p.logger.Info("summary committed", "bill", outcome.BillNumber)
	}
	return stats, nil
}

// ProcessBill runs one bill through every stage. Failures are returned rather
// than persisted; the bill stays on the missing-summary worklist and the next
// run retraverses it from the start.
func (p *Pipeline) ProcessBill(ctx context.Context, billNumber string, validator *TagValidator) Outcome {
	outcome := Outcome{BillNumber: billNumber, Stage: StagePending}
	fail := func(at Stage, err error) Outcome {
		outcome.Stage = StageFailed
		outcome.FailedAt = at
		outcome.Err = err
		return outcome
	}

	bill, err := p.bills.GetByNumber(ctx, billNumber)
	if err != nil {
		return fail(StagePending, fmt.Errorf("load bill: %w", err))
	}
	if bill == nil {
		return fail(StagePending, fmt.Errorf("bill %s is not in the store", billNumber))
	}
	billType, number, err := model.ParseBillNumber(billNumber)
	if err != nil {
		return fail(StagePending, err)
	}
	key := model.NewBillKey(bill.Congress, billType, number)

	textLink, lawLink, err := p.resolveTextLinks(ctx, key, bill)
	if err != nil {
		return fail(StageTextLinkResolved, err)
	}
	if err := p.bills.UpdateLinks(ctx, billNumber, nullString(textLink), nullString(lawLink)); err != nil {
		return fail(StageTextLinkResolved, fmt.Errorf("update links: %w", err))
	}
	outcome.Stage = StageTextLinkResolved

	document, err := p.fetchDocument(ctx, key, textLink)
	if err != nil {
		return fail(StageXMLDownloaded, err)
	}
	outcome.Stage = StageXMLDownloaded

	if err := ValidateXML(document); err != nil {
		return fail(StageTextExtracted, err)
	}
	text, err := ExtractText(document)
	if err != nil {
		return fail(StageTextExtracted, err)
	}
	outcome.Stage = StageTextExtracted

	summaryRaw, err := p.processor.GenerateSummary(ctx, text)
	if err != nil {
		return fail(StageResponseValidated, fmt.Errorf("generate summary: %w", err))
	}
	summaryResult, err := p.processor.ValidateResponse(summaryRaw)
	if err != nil {
		return fail(StageResponseValidated, fmt.Errorf("summary response: %w", err))
	}
	tagsRaw, err := p.processor.ExtractTags(ctx, text, validator.Categories())
	if err != nil {
		return fail(StageResponseValidated, fmt.Errorf("extract tags: %w", err))
	}
	tagsResult, err := p.processor.ValidateResponse(tagsRaw)
	if err != nil {
		return fail(StageResponseValidated, fmt.Errorf("tag response: %w", err))
	}
	outcome.Stage = StageResponseValidated

	tagIDs, unknown := validator.Validate(tagsResult.Tags)
	if err := p.handleUnknownTags(ctx, billNumber, unknown); err != nil {
		return fail(StageTagsNormalized, err)
	}
	outcome.Stage = StageTagsNormalized

	err = p.bills.CommitSummary(ctx, billNumber, summaryResult.Summary,
		nullString(textLink), nullString(lawLink), tagIDs)
	if err != nil {
		return fail(StageTagsNormalized, fmt.Errorf("commit summary: %w", err))
	}
	outcome.Stage = StageCommitted
	return outcome
}

// resolveTextLinks queries the text-versions sub-resource and picks the
// summarization link plus, when the bill is enacted, the public-law link.
func (p *Pipeline) resolveTextLinks(ctx context.Context, key model.BillKey, bill *model.Bill) (textLink, lawLink string, err error) {
	path := fmt.Sprintf("bill/%d/%s/%s/text", key.Congress, strings.ToLower(key.Type), key.Number)
	payload, err := p.client.Get(ctx, path, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetch text versions: %w", err)
	}

	var versions []model.TextVersion
	if raw, ok := payload["textVersions"]; ok {
		if err := json.Unmarshal(raw, &versions); err != nil {
			return "", "", fmt.Errorf("parse text versions: %w", err)
		}
	}
	introduced := ""
	if bill.IntroducedDate.Valid {
		introduced = bill.IntroducedDate.Time.Format("2006-01-02")
	}
	versions = service.ProcessTextVersions(versions, introduced)

	textLink, lawLink = service.SelectTextLinks(versions)
	if textLink == "" {
		return "", "", fmt.Errorf("no published text version available")
	}
	return textLink, lawLink, nil
}

// fetchDocument returns the bill XML, from the raw store when a prior run
// already downloaded it.
func (p *Pipeline) fetchDocument(ctx context.Context, key model.BillKey, link string) ([]byte, error) {
	segments := []string{"bill", strconv.Itoa(key.Congress), key.Type, key.Number, "text.xml"}

	cached, err := p.raw.LoadBytes(segments...)
	if err == nil {
		return cached, nil
	}
	if err != rawstore.ErrNotFound {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create document request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download bill text: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bill text download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bill text: %w", err)
	}

	if _, err := p.raw.SaveBytes(data, segments...); err != nil {
		p.logger.Warn("caching bill text failed", "bill", key.BillNumber(), "err", err)
	}
	return data, nil
}

func (p *Pipeline) handleUnknownTags(ctx context.Context, billNumber string, unknown []UnknownTag) error {
	if len(unknown) == 0 {
		return nil
	}
	if p.unknownTags == config.UnknownTagsQueue {
		for _, tag := range unknown {
			if err := p.tags.QueueForReview(ctx, tag.Category, tag.Value, billNumber); err != nil {
				return fmt.Errorf("queue tag for review: %w", err)
			}
		}
		return nil
	}
	p.logger.Info("unknown tags rejected", "bill", billNumber, "count", len(unknown))
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// PrintSummary reports the run's tallies.
func (s *PipelineStats) PrintSummary(logger *slog.Logger) {
	logger.Info("summarization run complete",
		"worklist", s.Worklist,
		"committed", s.Committed,
		"failed", s.Failed,
	)
}
