package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/store"
)

type memberJSON struct {
	BioguideID     string `json:"bioguide_id"`
	FullName       string `json:"full_name"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Party          string `json:"party,omitempty"`
	State          string `json:"state,omitempty"`
	District       *int64 `json:"district,omitempty"`
	Chamber        string `json:"chamber,omitempty"`
	PhotoURL       string `json:"photo_url,omitempty"`
	CurrentMember  bool   `json:"current_member"`
	SponsoredCount int    `json:"sponsored_count"`
	CosponsorCount int    `json:"cosponsored_count"`
}

func memberToJSON(m model.Member) memberJSON {
	out := memberJSON{
		BioguideID:     m.BioguideID,
		FullName:       m.FullName,
		FirstName:      m.FirstName.String,
		LastName:       m.LastName.String,
		Party:          m.Party.String,
		State:          m.State.String,
		Chamber:        m.Chamber.String,
		PhotoURL:       m.PhotoURL.String,
		CurrentMember:  m.CurrentMember,
		SponsoredCount: m.SponsoredCount,
		CosponsorCount: m.CosponsorCount,
	}
	if m.District.Valid {
		out.District = &m.District.Int64
	}
	return out
}

// MembersHandler lists members, optionally filtered by chamber and limited to
// current members.
func MembersHandler(members *store.MemberStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		chamber := c.Query("chamber")
		currentOnly := c.QueryBool("current", false)

		rows, err := members.GetAll(c.Context(), chamber, currentOnly)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading members")
		}

		out := make([]memberJSON, 0, len(rows))
		for _, m := range rows {
			out = append(out, memberToJSON(m))
		}
		return c.JSON(fiber.Map{"members": out, "count": len(out)})
	}
}

// MemberDetailHandler returns one member by bioguide id.
func MemberDetailHandler(members *store.MemberStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bioguideID := c.Params("bioguideId")

		member, err := members.GetByBioguideID(c.Context(), bioguideID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "error loading member")
		}
		if member == nil {
			return fiber.NewError(fiber.StatusNotFound, "member not found")
		}
		return c.JSON(fiber.Map{"member": memberToJSON(*member)})
	}
}
