// Package handlers exposes the read side as thin JSON endpoints over the
// stores. Handlers never write; every mutation goes through the pipeline
// commands.
package handlers

import (
	"database/sql"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/store"
)

// billJSON is the wire shape of a bill row, with nullable columns flattened
// to plain strings.
type billJSON struct {
	BillNumber       string   `json:"bill_number"`
	BillType         string   `json:"bill_type"`
	Congress         int      `json:"congress"`
	Title            string   `json:"title"`
	OfficialTitle    string   `json:"official_title,omitempty"`
	ShortTitle       string   `json:"short_title,omitempty"`
	SponsorID        string   `json:"sponsor_id,omitempty"`
	IntroducedDate   string   `json:"introduced_date,omitempty"`
	Status           string   `json:"status,omitempty"`
	NormalizedStatus string   `json:"normalized_status,omitempty"`
	LatestActionDate string   `json:"latest_action_date,omitempty"`
	PolicyArea       string   `json:"policy_area,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	TextLink         string   `json:"text_link,omitempty"`
	LawLink          string   `json:"law_link,omitempty"`
	RelatedBills     []string `json:"related_bills,omitempty"`
	LastUpdated      string   `json:"last_updated"`
}

func billToJSON(b model.Bill) billJSON {
	return billJSON{
		BillNumber:       b.BillNumber,
		BillType:         b.BillType,
		Congress:         b.Congress,
		Title:            b.Title,
		OfficialTitle:    b.OfficialTitle.String,
		ShortTitle:       b.ShortTitle.String,
		SponsorID:        b.SponsorID.String,
		IntroducedDate:   nullDate(b.IntroducedDate),
		Status:           b.Status,
		NormalizedStatus: b.NormalizedStatus,
		LatestActionDate: nullDate(b.LatestActionDate),
		PolicyArea:       b.PolicyArea.String,
		Summary:          b.Summary.String,
		TextLink:         b.TextLink.String,
		LawLink:          b.LawLink.String,
		RelatedBills:     b.RelatedBills,
		LastUpdated:      b.LastUpdated.Format("2006-01-02T15:04:05Z"),
	}
}

func nullDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format("2006-01-02")
}

// BillsHandler lists bills, most recently updated first.
func BillsHandler(bills *store.BillStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		offset := c.QueryInt("offset", 0)

		rows, err := bills.GetAll(c.Context(), limit, offset)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading bills")
		}

		out := make([]billJSON, 0, len(rows))
		for _, b := range rows {
			out = append(out, billToJSON(b))
		}
		return c.JSON(fiber.Map{"bills": out, "count": len(out)})
	}
}

// BillDetailHandler returns one bill with its action history.
func BillDetailHandler(bills *store.BillStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		billNumber := strings.ToUpper(c.Params("billNumber"))

		bill, err := bills.GetByNumber(c.Context(), billNumber)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading bill")
		}
		if bill == nil {
			return fiber.NewError(fiber.StatusNotFound, "bill not found")
		}

		actions, err := bills.GetActions(c.Context(), billNumber)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading actions")
		}

		type actionJSON struct {
			Date string `json:"date,omitempty"`
			Time string `json:"time,omitempty"`
			Text string `json:"text"`
			Type string `json:"type,omitempty"`
		}
		actionsOut := make([]actionJSON, 0, len(actions))
		for _, a := range actions {
			actionsOut = append(actionsOut, actionJSON{
				Date: nullDate(a.ActionDate),
				Time: a.ActionTime.String,
				Text: a.Text,
				Type: a.Type.String,
			})
		}

		return c.JSON(fiber.Map{
			"bill":    billToJSON(*bill),
			"actions": actionsOut,
		})
	}
}
