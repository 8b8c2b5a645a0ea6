package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

// TournamentView is the JSON shape of a cached tournament.
type TournamentView struct {
	ID                 string    `json:"id"`
	Draft              bool      `json:"draft,omitempty"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Status             string    `json:"status"`
	ParticipantsCount  int       `json:"participants_count"`
	PrizePool          float64   `json:"prize_pool"`
	IsRegistrationOpen bool      `json:"is_registration_open"`
	Winner             string    `json:"winner,omitempty"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
	Pending            bool      `json:"pending,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

// StatsData contains tournament statistics
type StatsData struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Pending  int            `json:"pending"`
	Drafts   int            `json:"drafts"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Changed  int           `json:"changed"`
	Pages    int           `json:"pages"`
	Duration time.Duration `json:"duration"`
}

// Handler turns store updates and daemon events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// Run publishes every list received from updates until ctx is cancelled or
// updates is closed. Pass the channel returned by a store watch.
func (h *Handler) Run(ctx context.Context, updates <-chan []store.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case recs, ok := <-updates:
			if !ok {
				return
			}
			h.OnTournaments(recs)
		}
	}
}

// OnTournaments replaces the snapshot and broadcasts it with fresh stats.
func (h *Handler) OnTournaments(recs []store.Record) {
	views := make([]TournamentView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, ViewOf(rec))
	}
	h.server.SetSnapshot(views)

	if err := h.server.BroadcastData(MessageTypeTournaments, views); err != nil {
		h.logger.Printf("Failed to broadcast tournaments: %v", err)
		return
	}
	if err := h.server.BroadcastData(MessageTypeStats, Stats(recs)); err != nil {
		h.logger.Printf("Failed to broadcast stats: %v", err)
	}
}

// OnSyncComplete broadcasts the outcome of a sync.
func (h *Handler) OnSyncComplete(changed, pages int, took time.Duration) {
	data := SyncCompleteData{Changed: changed, Pages: pages, Duration: took}
	if err := h.server.BroadcastData(MessageTypeSyncComplete, data); err != nil {
		h.logger.Printf("Failed to broadcast sync result: %v", err)
	}
}

// ViewOf converts a record to its dashboard representation.
func ViewOf(rec store.Record) TournamentView {
	return TournamentView{
		ID:                 rec.Key(),
		Draft:              rec.ID.IsDraft(),
		Name:               rec.Name,
		Description:        rec.Description,
		StartDate:          rec.StartDate,
		EndDate:            rec.EndDate,
		Status:             string(rec.Status),
		ParticipantsCount:  rec.ParticipantsCount,
		PrizePool:          rec.PrizePool,
		IsRegistrationOpen: rec.IsRegistrationOpen,
		Winner:             rec.WinnerName(),
		Latitude:           rec.Latitude,
		Longitude:          rec.Longitude,
		Pending:            rec.HasPendingChanges,
		LastUpdated:        rec.LastUpdated,
	}
}

// Stats counts records by status.
func Stats(recs []store.Record) StatsData {
	st := StatsData{
		Total: len(recs),
		ByStatus: map[string]int{
			string(tournament.StatusUpcoming):   0,
			string(tournament.StatusInProgress): 0,
			string(tournament.StatusCompleted):  0,
		},
	}
	for _, rec := range recs {
		st.ByStatus[string(rec.Status)]++
		if rec.HasPendingChanges {
			st.Pending++
		}
		if rec.ID.IsDraft() {
			st.Drafts++
		}
	}
	return st
}
