package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanPublisher chan model.ChangeEvent

func (c chanPublisher) Publish(event model.ChangeEvent) { c <- event }

func TestSupabaseClient_JoinsAndPublishesChanges(t *testing.T) {
	joined := make(chan map[string]any, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/v1/websocket", r.URL.Path)
		assert.Equal(t, "anon-key", r.URL.Query().Get("apikey"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join map[string]any
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		joined <- join

		_ = conn.WriteJSON(map[string]any{
			"topic":   supabaseTopic,
			"event":   "phx_reply",
			"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			"ref":     join["ref"],
		})

		// Невалидное событие должно быть отброшено, валидное доставлено
		_ = conn.WriteJSON(map[string]any{
			"topic": supabaseTopic,
			"event": "postgres_changes",
			"payload": map[string]any{
				"data": map[string]any{"table": "bookings", "type": "INSERT"},
			},
		})
		_ = conn.WriteJSON(map[string]any{
			"topic": supabaseTopic,
			"event": "postgres_changes",
			"payload": map[string]any{
				"ids": []int{1},
				"data": map[string]any{
					"schema":           "public",
					"table":            "notifications",
					"type":             "INSERT",
					"record":           map[string]any{"id": "4b1b8f0c-5f58-4a8e-8c3e-5b2d8e6d3b10"},
					"commit_timestamp": "2026-10-16T09:30:00Z",
				},
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chanPublisher, 4)
	client := NewSupabaseClient(srv.URL, "anon-key", func() string { return "user-token" }, events, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case join := <-joined:
		assert.Equal(t, supabaseTopic, join["topic"])
		assert.Equal(t, "phx_join", join["event"])
		payload := join["payload"].(map[string]any)
		assert.Equal(t, "user-token", payload["access_token"])

		raw, err := json.Marshal(payload["config"])
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"table":"request_applications"`)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not join")
	}

	select {
	case ev := <-events:
		assert.Equal(t, model.TableNotifications, ev.Table)
		assert.Equal(t, model.ChangeInsert, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("change was not published")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}

	assert.Empty(t, events)
}
