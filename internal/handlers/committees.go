package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jharding/legistrack/internal/store"
)

type committeeJSON struct {
	SystemCode string `json:"system_code"`
	Name       string `json:"name"`
	Chamber    string `json:"chamber,omitempty"`
	TypeCode   string `json:"type_code,omitempty"`
	ParentCode string `json:"parent_code,omitempty"`
}

// CommitteesHandler lists committees with subcommittees grouped after their
// parents, optionally filtered by chamber.
func CommitteesHandler(committees *store.CommitteeStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chamber := c.Query("chamber")

		rows, err := committees.GetAll(c.Context(), chamber)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading committees")
		}

		out := make([]committeeJSON, 0, len(rows))
		for _, cm := range rows {
			out = append(out, committeeJSON{
				SystemCode: cm.SystemCode,
				Name:       cm.Name,
				Chamber:    cm.Chamber.String,
				TypeCode:   cm.TypeCode.String,
				ParentCode: cm.ParentCode.String,
			})
		}
		return c.JSON(fiber.Map{"committees": out, "count": len(out)})
	}
}
