package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client, consumes the snapshot sent on connect and waits
// until the server has registered the client.
func dial(t *testing.T, ctx context.Context, server *Server, wantClients int) (*websocket.Conn, Message) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	welcome := readMessage(t, ctx, conn)

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() < wantClients {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", wantClients, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn, welcome
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func record(id string, status tournament.Status, pending bool) store.Record {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tid := tournament.Saved(id)
	if id == "" {
		tid = tournament.NewDraft()
	}
	return store.Record{
		Tournament: tournament.Tournament{
			ID:        tid,
			Name:      "Cup " + id,
			StartDate: start,
			EndDate:   start.Add(2 * time.Hour),
			Status:    status,
		},
		Version:           1,
		HasPendingChanges: pending,
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocket_SnapshotOnConnect(t *testing.T) {
	server := startTestServer(t)
	server.SetSnapshot([]TournamentView{ViewOf(record("1", tournament.StatusUpcoming, false))})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server, 1)
	if welcome.Type != MessageTypeTournaments {
		t.Fatalf("Expected welcome type %s, got %s", MessageTypeTournaments, welcome.Type)
	}
	var views []TournamentView
	if err := json.Unmarshal(welcome.Data, &views); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if len(views) != 1 || views[0].ID != "1" {
		t.Errorf("unexpected snapshot %+v", views)
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	server := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var clients []*websocket.Conn
	for i := 1; i <= 3; i++ {
		conn, _ := dial(t, ctx, server, i)
		clients = append(clients, conn)
	}

	n := notify.Notification{
		Category: notify.CategoryStart,
		Title:    "Tournament Starting: Cup",
		Body:     "Cup is starting now!",
		ID:       "start_time_reminders:1",
		Window:   "start-now",
	}
	if err := server.Notify(ctx, n); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeNotification {
			t.Errorf("client %d: expected %s, got %s", i, MessageTypeNotification, msg.Type)
			continue
		}
		var got notify.Notification
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("client %d: failed to decode notification: %v", i, err)
		}
		if got.ID != n.ID || got.Body != n.Body {
			t.Errorf("client %d: unexpected notification %+v", i, got)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server, 1)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 0 clients after disconnect, got %d", server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_OnTournaments(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server, 1)

	recs := []store.Record{
		record("1", tournament.StatusUpcoming, false),
		record("2", tournament.StatusCompleted, true),
		record("", tournament.StatusUpcoming, true),
	}
	handler.OnTournaments(recs)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTournaments {
		t.Fatalf("expected %s, got %s", MessageTypeTournaments, msg.Type)
	}
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("expected %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 2 || stats.Drafts != 1 ||
		stats.ByStatus["UPCOMING"] != 2 || stats.ByStatus["COMPLETED"] != 1 || stats.ByStatus["IN_PROGRESS"] != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if got := len(server.Snapshot()); got != 3 {
		t.Errorf("expected snapshot of 3, got %d", got)
	}
}

func TestHandler_Run(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	updates := make(chan []store.Record, 1)
	updates <- []store.Record{record("9", tournament.StatusInProgress, false)}
	close(updates)

	handler.Run(context.Background(), updates)

	snap := server.Snapshot()
	if len(snap) != 1 || snap[0].Status != "IN_PROGRESS" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHandler_OnSyncComplete(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server, 1)
	handler.OnSyncComplete(2, 3, 150*time.Millisecond)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if data.Changed != 2 || data.Pages != 3 || data.Duration != 150*time.Millisecond {
		t.Errorf("unexpected data %+v", data)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	server := startTestServer(t)
	server.SetSnapshot([]TournamentView{ViewOf(record("1", tournament.StatusUpcoming, false))})
	base := "http://" + server.GetAddr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" || health["tournaments"] != float64(1) {
		t.Errorf("unexpected health %+v", health)
	}

	resp, err = http.Get(base + "/api/tournaments")
	if err != nil {
		t.Fatalf("tournaments request failed: %v", err)
	}
	var views []TournamentView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("failed to decode tournaments: %v", err)
	}
	resp.Body.Close()
	if len(views) != 1 || views[0].Name != "Cup 1" {
		t.Errorf("unexpected tournaments %+v", views)
	}

	resp, err = http.Post(base+"/api/tournaments", "application/json", nil)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/nope")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
