package service

import (
	"context"
	"time"

	"github.com/jharding/legistrack/internal/model"
)

// Narrow store views consumed by the stages. The concrete stores satisfy
// them; tests substitute in-memory fakes.

type syncTracker interface {
	LastSuccessfulSync(ctx context.Context, endpoint string) (time.Time, error)
	SetStatus(ctx context.Context, endpoint, status string, offset int, runID string, runErr error) error
}

type billUpsertStore interface {
	LastUpdated(ctx context.Context, billNumber string) (time.Time, bool, error)
	Upsert(ctx context.Context, b *model.Bill, updateDate time.Time) (bool, error)
}

type billDetailStore interface {
	UpdateDetail(ctx context.Context, b *model.Bill) error
	UpdateTextVersions(ctx context.Context, billNumber string, versions []model.TextVersion) error
	UpdateRelatedBills(ctx context.Context, billNumber string, related []string) error
	ReplaceActions(ctx context.Context, billNumber string, actions []model.Action) (int, error)
	ReplaceCosponsors(ctx context.Context, billNumber string, cosponsors []model.Cosponsor) (int, error)
	ReplaceSubjects(ctx context.Context, billNumber string, subjects []string) (int, error)
	AttachTag(ctx context.Context, billID, tagID int) error
}

type tagCatalog interface {
	EnsureTagType(ctx context.Context, name string) (int, error)
	GetOrCreateTag(ctx context.Context, typeID int, name string) (int, error)
}
