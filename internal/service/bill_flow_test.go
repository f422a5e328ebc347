package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
)

// fakeSyncTracker records status transitions and serves a fixed watermark.
type fakeSyncTracker struct {
	lastSuccess time.Time
	statuses    []string
}

func (f *fakeSyncTracker) LastSuccessfulSync(ctx context.Context, endpoint string) (time.Time, error) {
	return f.lastSuccess, nil
}

func (f *fakeSyncTracker) SetStatus(ctx context.Context, endpoint, status string, offset int, runID string, runErr error) error {
	f.statuses = append(f.statuses, status)
	return nil
}

// fakeBillTable is an in-memory bills table shared by the fetch and detail
// fakes, keyed by bill number.
type fakeBillTable struct {
	rows         map[string]*model.Bill
	watermarks   map[string]time.Time
	actions      map[string][]model.Action
	cosponsors   map[string][]model.Cosponsor
	subjects     map[string][]string
	textVersions map[string][]model.TextVersion
	related      map[string][]string
	tags         map[int][]int
}

func newFakeBillTable() *fakeBillTable {
	return &fakeBillTable{
		rows:         make(map[string]*model.Bill),
		watermarks:   make(map[string]time.Time),
		actions:      make(map[string][]model.Action),
		cosponsors:   make(map[string][]model.Cosponsor),
		subjects:     make(map[string][]string),
		textVersions: make(map[string][]model.TextVersion),
		related:      make(map[string][]string),
		tags:         make(map[int][]int),
	}
}

func (f *fakeBillTable) LastUpdated(ctx context.Context, billNumber string) (time.Time, bool, error) {
	t, ok := f.watermarks[billNumber]
	return t, ok, nil
}

func (f *fakeBillTable) Upsert(ctx context.Context, b *model.Bill, updateDate time.Time) (bool, error) {
	_, exists := f.rows[b.BillNumber]
	row := *b
	row.ID = len(f.rows) + 1
	if exists {
		row.ID = f.rows[b.BillNumber].ID
	}
	f.rows[b.BillNumber] = &row
	f.watermarks[b.BillNumber] = updateDate
	return !exists, nil
}

func (f *fakeBillTable) UpdateDetail(ctx context.Context, b *model.Bill) error {
	stored, ok := f.rows[b.BillNumber]
	if !ok {
		return fmt.Errorf("bill %s not found", b.BillNumber)
	}
	b.ID = stored.ID
	updated := *b
	updated.ID = stored.ID
	f.rows[b.BillNumber] = &updated
	return nil
}

func (f *fakeBillTable) UpdateTextVersions(ctx context.Context, billNumber string, versions []model.TextVersion) error {
	f.textVersions[billNumber] = versions
	return nil
}

func (f *fakeBillTable) UpdateRelatedBills(ctx context.Context, billNumber string, related []string) error {
	f.related[billNumber] = related
	return nil
}

func (f *fakeBillTable) ReplaceActions(ctx context.Context, billNumber string, actions []model.Action) (int, error) {
	f.actions[billNumber] = actions
	return len(actions), nil
}

func (f *fakeBillTable) ReplaceCosponsors(ctx context.Context, billNumber string, cosponsors []model.Cosponsor) (int, error) {
	f.cosponsors[billNumber] = cosponsors
	return len(cosponsors), nil
}

func (f *fakeBillTable) ReplaceSubjects(ctx context.Context, billNumber string, subjects []string) (int, error) {
	f.subjects[billNumber] = subjects
	return len(subjects), nil
}

func (f *fakeBillTable) AttachTag(ctx context.Context, billID, tagID int) error {
	f.tags[billID] = append(f.tags[billID], tagID)
	return nil
}

// fakeTagCatalog hands out sequential ids.
type fakeTagCatalog struct {
	types map[string]int
	tags  map[string]int
}

func newFakeTagCatalog() *fakeTagCatalog {
	return &fakeTagCatalog{types: make(map[string]int), tags: make(map[string]int)}
}

func (f *fakeTagCatalog) EnsureTagType(ctx context.Context, name string) (int, error) {
	if id, ok := f.types[name]; ok {
		return id, nil
	}
	id := len(f.types) + 1
	f.types[name] = id
	return id, nil
}

func (f *fakeTagCatalog) GetOrCreateTag(ctx context.Context, typeID int, name string) (int, error) {
	key := fmt.Sprintf("%d/%s", typeID, name)
	if id, ok := f.tags[key]; ok {
		return id, nil
	}
	id := len(f.tags) + 100
	f.tags[key] = id
	return id, nil
}

// stubUpstream serves one modern bill, HR21 of congress 117, with three
// actions and two text versions.
func stubUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var srvURL string
	mux.HandleFunc("/bill", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"bills": [{
				"congress": 117, "type": "HR", "number": "21",
				"title": "Veterans Access Act",
				"updateDate": "2022-04-10T12:00:00Z",
				"latestAction": {"actionDate": "2022-04-06", "text": "Became Public Law No: 117-108."}
			}],
			"pagination": {"count": 1}
		}`)
	})
	mux.HandleFunc("/bill/117/hr/21", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"bill": {
				"congress": 117, "type": "HR", "number": "21",
				"title": "Veterans Access Act",
				"introducedDate": "2021-01-04",
				"updateDate": "2022-04-10T12:00:00Z",
				"latestAction": {"actionDate": "2022-04-06", "text": "Became Public Law No: 117-108."},
				"sponsors": [{"bioguideId": "B000001", "fullName": "Rep. Doe, Jordan", "party": "D", "state": "CA"}],
				"policyArea": {"name": "Armed Forces and National Security"},
				"actions": {"count": 3, "url": "%[1]s/bill/117/hr/21/actions"},
				"textVersions": {"count": 2, "url": "%[1]s/bill/117/hr/21/text"}
			}
		}`, srvURL)
	})
	mux.HandleFunc("/bill/117/hr/21/actions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"actions": [
				{"actionDate": "2021-01-04", "text": "Introduced in House", "type": "IntroReferral"},
				{"actionDate": "2022-03-30", "text": "Passed/agreed to in Senate.", "type": "Floor"},
				{"actionDate": "2022-04-06", "text": "Became Public Law No: 117-108.", "type": "BecameLaw"}
			],
			"pagination": {"count": 3}
		}`)
	})
	mux.HandleFunc("/bill/117/hr/21/text", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"textVersions": [
				{"type": "Public Law", "date": "2022-04-06T04:00:00Z",
					"formats": [{"type": "Formatted XML", "url": "https://example.gov/hr21pl.xml"}]},
				{"type": "Introduced in House", "date": "2021-01-04T05:00:00Z",
					"formats": [{"type": "Formatted XML", "url": "https://example.gov/hr21ih.xml"}]}
			]
		}`)
	})

	srv := httptest.NewServer(mux)
	srvURL = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func flowClient(baseURL string) *congress.Client {
	cfg := config.APIConfig{
		BaseURL:        baseURL,
		Key:            "test-key",
		TimeoutSeconds: 5,
		MaxRetries:     2,
		PageLimit:      250,
		RequestsPerSec: 1000,
	}
	return congress.NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchThenEnrichSingleBill(t *testing.T) {
	srv := stubUpstream(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := flowClient(srv.URL)
	raw := rawstore.New(t.TempDir(), 0, logger)

	bills := newFakeBillTable()
	sync := &fakeSyncTracker{}

	fetcher := NewBillFetcher(client, raw, bills, sync, 7, logger)
	stats, err := fetcher.Run(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, []string{model.SyncInProgress, model.SyncSuccess}, sync.statuses)

	require.Len(t, bills.rows, 1)
	row := bills.rows["HR21"]
	require.NotNil(t, row)
	assert.Equal(t, 117, row.Congress)

	processor := NewBillProcessor(client, raw, bills, newFakeTagCatalog(),
		config.HistoricalPickLatestUpdate, logger)
	result := processor.ProcessOne(context.Background(), model.NewBillKey(117, "hr", "21"))
	require.NoError(t, result.Err)

	// Exactly one row, three actions, two text versions.
	require.Len(t, bills.rows, 1)
	assert.Len(t, bills.actions["HR21"], 3)
	assert.Len(t, bills.textVersions["HR21"], 2)

	row = bills.rows["HR21"]
	assert.Equal(t, StatusBecameLaw, row.NormalizedStatus)
	assert.Equal(t, "B000001", row.SponsorID.String)
	assert.Equal(t, "Armed Forces and National Security", row.PolicyArea.String)

	// The final action is the enacting one.
	actions := bills.actions["HR21"]
	assert.Contains(t, actions[len(actions)-1].Text, "Became Public Law")
}

func TestEnrichCountsFailedSubresource(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/bill/117/hr/21", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"bill": {
				"congress": 117, "type": "HR", "number": "21",
				"title": "Veterans Access Act",
				"introducedDate": "2021-01-04",
				"actions": {"count": 3, "url": "%s/bill/117/hr/21/actions"}
			}
		}`, srvURL)
	})
	mux.HandleFunc("/bill/117/hr/21/actions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	srvURL = srv.URL
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	raw := rawstore.New(t.TempDir(), 0, logger)
	bills := newFakeBillTable()
	_, err := bills.Upsert(context.Background(),
		&model.Bill{BillNumber: "HR21", Congress: 117}, time.Now())
	require.NoError(t, err)

	processor := NewBillProcessor(flowClient(srv.URL), raw, bills, newFakeTagCatalog(),
		config.HistoricalPickLatestUpdate, logger)
	result := processor.ProcessOne(context.Background(), model.NewBillKey(117, "hr", "21"))

	// The detail row updated, but the bill still has its actions gap.
	require.NoError(t, result.Err)
	assert.True(t, result.DetailsUpdated)
	assert.Equal(t, 1, result.SubErrors)
	assert.True(t, result.Failed())
	assert.Empty(t, bills.actions["HR21"])
}

func TestFetchSecondRunSkipsUnchanged(t *testing.T) {
	srv := stubUpstream(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := flowClient(srv.URL)
	dir := t.TempDir()
	raw := rawstore.New(dir, 0, logger)

	bills := newFakeBillTable()
	fetcher := NewBillFetcher(client, raw, bills, &fakeSyncTracker{}, 7, logger)

	first, err := fetcher.Run(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := fetcher.Run(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 1, second.Skipped)
	require.Len(t, bills.rows, 1)

	// The skipped record was still archived; overwriting the first run's
	// snapshot leaves a timestamped backup behind.
	backups, err := filepath.Glob(filepath.Join(dir, "bill", "117", "HR", "21", "list.json.bak.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestCaseVariantKeysResolveToOneRow(t *testing.T) {
	bills := newFakeBillTable()
	ctx := context.Background()

	_, err := bills.Upsert(ctx, &model.Bill{BillNumber: model.NewBillKey(117, "hr", "123").BillNumber(), Congress: 117}, time.Now())
	require.NoError(t, err)
	_, err = bills.Upsert(ctx, &model.Bill{BillNumber: model.NewBillKey(117, "HR", "123").BillNumber(), Congress: 117}, time.Now())
	require.NoError(t, err)

	assert.Len(t, bills.rows, 1)
}

func TestResolveWindowIgnoresCrashedRun(t *testing.T) {
	// A crashed run leaves an in_progress row behind; the watermark must
	// come from the last success, never from the crashed run's offset.
	lastSuccess := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sync := &fakeSyncTracker{lastSuccess: lastSuccess}

	window, err := resolveWindow(context.Background(), sync, EndpointBills,
		FetchOptions{}, 7*24*time.Hour)
	require.NoError(t, err)

	assert.False(t, window.full)
	assert.Equal(t, lastSuccess.AddDate(0, 0, -7), window.from)
	assert.True(t, window.to.IsZero())
}

func TestResolveWindowFirstRunIsFull(t *testing.T) {
	window, err := resolveWindow(context.Background(), &fakeSyncTracker{}, EndpointBills,
		FetchOptions{}, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, window.full)
}
