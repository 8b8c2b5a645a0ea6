package remote

import (
	"time"

	"github.com/tourneysync/tourney/internal/tournament"
)

// tournamentDTO is the JSON shape of a tournament on the wire.
type tournamentDTO struct {
	ID                 string    `json:"id,omitempty"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	ParticipantsCount  int       `json:"participantsCount"`
	PrizePool          float64   `json:"prizePool"`
	IsRegistrationOpen bool      `json:"isRegistrationOpen"`
	Winner             *string   `json:"winner"`
	Status             string    `json:"status"`
	UserID             string    `json:"userId"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
}

type listResponse struct {
	Tournaments []tournamentDTO `json:"tournaments"`
	Pagination  Pagination      `json:"pagination"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// toDTO converts t for a request body. Draft keys never leave the device.
func toDTO(t tournament.Tournament) tournamentDTO {
	id, _ := t.ID.Remote()
	return tournamentDTO{
		ID:                 id,
		Name:               t.Name,
		Description:        t.Description,
		StartDate:          t.StartDate.UTC(),
		EndDate:            t.EndDate.UTC(),
		ParticipantsCount:  t.ParticipantsCount,
		PrizePool:          t.PrizePool,
		IsRegistrationOpen: t.IsRegistrationOpen,
		Winner:             t.Winner,
		Status:             string(t.Status),
		UserID:             t.UserID,
		Latitude:           t.Latitude,
		Longitude:          t.Longitude,
	}
}

func (d tournamentDTO) toDomain() tournament.Tournament {
	t := tournament.Tournament{
		ID:                 tournament.Saved(d.ID),
		Name:               d.Name,
		Description:        d.Description,
		StartDate:          tournament.TruncateMillis(d.StartDate),
		EndDate:            tournament.TruncateMillis(d.EndDate),
		ParticipantsCount:  d.ParticipantsCount,
		PrizePool:          d.PrizePool,
		IsRegistrationOpen: d.IsRegistrationOpen,
		Winner:             d.Winner,
		Status:             tournament.Status(d.Status),
		UserID:             d.UserID,
		Latitude:           d.Latitude,
		Longitude:          d.Longitude,
	}
	if d.ID == "" {
		t.ID = tournament.ID{}
	}
	if d.Winner != nil && *d.Winner == "" {
		t.Winner = nil
	}
	return t
}
