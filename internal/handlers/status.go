package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jharding/legistrack/internal/store"
)

// StatusHandler reports the per-endpoint sync state.
func StatusHandler(sync *store.SyncStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		states, err := sync.GetAll(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading sync status")
		}

		type stateJSON struct {
			Endpoint      string `json:"endpoint"`
			Status        string `json:"status"`
			LastSync      string `json:"last_sync"`
			LastSuccessAt string `json:"last_success_at,omitempty"`
			LastError     string `json:"last_error,omitempty"`
			LastRunID     string `json:"last_run_id,omitempty"`
		}
		out := make([]stateJSON, 0, len(states))
		for _, s := range states {
			entry := stateJSON{
				Endpoint:  s.Endpoint,
				Status:    s.Status,
				LastSync:  s.LastSync.Format("2006-01-02T15:04:05Z"),
				LastError: s.LastError.String,
				LastRunID: s.LastRunID.String,
			}
			if s.LastSuccessAt.Valid {
				entry.LastSuccessAt = s.LastSuccessAt.Time.Format("2006-01-02T15:04:05Z")
			}
			out = append(out, entry)
		}
		return c.JSON(fiber.Map{"endpoints": out})
	}
}
