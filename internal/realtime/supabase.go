package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	supabaseTopic            = "realtime:market"
	defaultHeartbeatInterval = 30 * time.Second
)

// phoenixMessage сообщение протокола Phoenix (vsn 1.0.0)
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type postgresChangesPayload struct {
	Data changePayload `json:"data"`
	IDs  []int64       `json:"ids"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type postgresChangesConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// SupabaseClient получает postgres_changes из Supabase Realtime по websocket
// и публикует их в Publisher
type SupabaseClient struct {
	url       string
	token     func() string
	tables    []model.Table
	publisher Publisher
	logger    *zap.Logger
	dialer    *websocket.Dialer

	heartbeatInterval time.Duration
	reconnectDelay    time.Duration

	writeMu sync.Mutex
	ref     int
}

// NewSupabaseClient создаёт клиента. token отдаёт текущий access token сессии (может быть пустым)
func NewSupabaseClient(supabaseURL, apiKey string, token func() string, publisher Publisher, logger *zap.Logger) *SupabaseClient {
	return &SupabaseClient{
		url:               websocketURL(supabaseURL, apiKey),
		token:             token,
		tables:            []model.Table{model.TableRequests, model.TableApplications, model.TableNotifications},
		publisher:         publisher,
		logger:            logger,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectDelay:    5 * time.Second,
	}
}

// websocketURL переводит HTTP URL проекта в адрес realtime websocket
func websocketURL(supabaseURL, apiKey string) string {
	wsURL := strings.TrimRight(supabaseURL, "/")
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + strings.TrimPrefix(wsURL, "https")
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}

	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")

	return wsURL + "/realtime/v1/websocket?" + q.Encode()
}

// Run держит подключение до отмены контекста, переподключаясь после обрыва
func (c *SupabaseClient) Run(ctx context.Context) error {
	c.logger.Info("Starting supabase realtime client", zap.Int("tables", len(c.tables)))

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Supabase realtime client stopped")
			return nil
		}

		c.logger.Error("Supabase realtime connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("delay", c.reconnectDelay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *SupabaseClient) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	done := make(chan struct{})
	defer close(done)

	// ReadMessage не принимает контекст, поэтому при отмене закрываем соединение
	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			c.writeMu.Unlock()
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	if err := c.join(conn); err != nil {
		return err
	}

	go c.heartbeat(conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		c.handleMessage(message)
	}
}

func (c *SupabaseClient) join(conn *websocket.Conn) error {
	changes := make([]postgresChangesConfig, 0, len(c.tables))
	for _, table := range c.tables {
		changes = append(changes, postgresChangesConfig{Event: "*", Schema: "public", Table: string(table)})
	}

	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": changes,
		},
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			payload["access_token"] = token
		}
	}

	if err := c.send(conn, supabaseTopic, "phx_join", payload, true); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	return nil
}

func (c *SupabaseClient) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.send(conn, "phoenix", "heartbeat", map[string]any{}, false); err != nil {
				c.logger.Warn("Failed to send heartbeat", zap.Error(err))
				return
			}
		}
	}
}

func (c *SupabaseClient) send(conn *websocket.Conn, topic, event string, payload any, withJoinRef bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ref++
	ref := strconv.Itoa(c.ref)

	msg := map[string]any{
		"topic":   topic,
		"event":   event,
		"payload": payload,
		"ref":     ref,
	}
	if withJoinRef {
		msg["join_ref"] = ref
	}

	return conn.WriteJSON(msg)
}

func (c *SupabaseClient) handleMessage(message []byte) {
	var msg phoenixMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("Dropping malformed realtime message", zap.Error(err))
		return
	}

	switch msg.Event {
	case "postgres_changes":
		var p postgresChangesPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.logger.Warn("Dropping malformed postgres_changes payload", zap.Error(err))
			return
		}
		event, err := p.Data.toEvent()
		if err != nil {
			c.logger.Warn("Dropping invalid change payload", zap.Error(err))
			return
		}
		c.publisher.Publish(event)

	case "phx_reply":
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return
		}
		if reply.Status != "ok" {
			c.logger.Error("Realtime request rejected",
				zap.String("topic", msg.Topic),
				zap.ByteString("response", reply.Response),
			)
		}

	case "phx_error", "phx_close":
		c.logger.Warn("Realtime channel closed by server", zap.String("event", msg.Event))

	case "system":
		c.logger.Debug("Realtime system message", zap.ByteString("payload", msg.Payload))
	}
}
