package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"talkbot/internal/config"
	"talkbot/internal/conversation"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 20
)

// Frame is the JSON unit exchanged over the socket.
//
// Inbound types: talk, reply, stop. Outbound types: message, summary, error,
// closed.
type Frame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Turn    int    `json:"turn,omitempty"`
	Session string `json:"session,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// WebSocket serves one conversation at a time per connection.
type WebSocket struct {
	cfg      config.WebSocketConfig
	runner   Runner
	mailbox  *Mailbox
	upgrader websocket.Upgrader
	ctx      context.Context
}

func NewWebSocket(cfg config.WebSocketConfig, runner Runner) *WebSocket {
	w := &WebSocket{
		cfg:     cfg,
		runner:  runner,
		mailbox: NewMailbox(),
		ctx:     context.Background(),
	}
	w.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     w.checkOrigin,
	}
	return w
}

func (w *WebSocket) checkOrigin(r *http.Request) bool {
	if len(w.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range w.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Handler returns the upgrade endpoint.
func (w *WebSocket) Handler() http.Handler {
	return http.HandlerFunc(w.handleWS)
}

// Run listens on the configured address until ctx is cancelled.
func (w *WebSocket) Run(ctx context.Context) error {
	w.ctx = ctx
	defer w.mailbox.StopAll()

	mux := http.NewServeMux()
	mux.Handle(w.cfg.Path, w.Handler())
	server := &http.Server{Addr: w.cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("WebSocket listening on %s%s", w.cfg.ListenAddr, w.cfg.Path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("WebSocket shutdown error: %v", err)
		}
		return nil
	}
}

type wsClient struct {
	conn *websocket.Conn
	id   string
	send chan Frame
	done chan struct{}
	once sync.Once
}

// SendFrame queues a frame; it fails once the connection is gone.
func (c *wsClient) SendFrame(ctx context.Context, f Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errors.New("websocket connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (w *WebSocket) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		id:   "ws-" + uuid.NewString(),
		send: make(chan Frame, 16),
		done: make(chan struct{}),
	}
	logger.Infof("WebSocket client connected: %s", client.id)

	go w.writePump(client)
	w.readPump(client)
}

func (w *WebSocket) readPump(c *wsClient) {
	defer func() {
		c.close()
		w.mailbox.Stop(c.id) //nolint:errcheck
		c.conn.Close()
		logger.Infof("WebSocket client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.SendFrame(w.ctx, Frame{Type: "error", Text: "invalid frame: " + err.Error()}) //nolint:errcheck
			continue
		}
		w.handleFrame(c, f)
	}
}

func (w *WebSocket) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (w *WebSocket) handleFrame(c *wsClient, f Frame) {
	switch f.Type {
	case "talk":
		human := &wsHuman{mailboxReplies: mailboxReplies{key: c.id, mailbox: w.mailbox}, client: c}
		err := startSession(w.ctx, w.mailbox, w.runner, c.id, human, f.Text, func(res conversation.Result, err error) {
			closed := Frame{Type: "closed", Session: res.SessionID, Turn: res.State.TurnCount, Reason: res.Reason}
			if err != nil {
				closed.Text = err.Error()
			}
			c.SendFrame(w.ctx, closed) //nolint:errcheck
		})
		if err != nil {
			c.SendFrame(w.ctx, Frame{Type: "error", Text: err.Error()}) //nolint:errcheck
		}
	case "reply":
		if err := w.mailbox.Post(c.id, f.Text); err != nil {
			c.SendFrame(w.ctx, Frame{Type: "error", Text: err.Error()}) //nolint:errcheck
		}
	case "stop":
		if err := w.mailbox.Stop(c.id); err != nil {
			c.SendFrame(w.ctx, Frame{Type: "error", Text: err.Error()}) //nolint:errcheck
		}
	default:
		c.SendFrame(w.ctx, Frame{Type: "error", Text: fmt.Sprintf("unknown frame type %q", f.Type)}) //nolint:errcheck
	}
}

type wsHuman struct {
	mailboxReplies
	client *wsClient
}

func (h *wsHuman) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	return h.client.SendFrame(ctx, Frame{Type: "message", Text: msg.Message, Turn: msg.Turn})
}

func (h *wsHuman) DeliverSummary(ctx context.Context, report string) error {
	return h.client.SendFrame(ctx, Frame{Type: "summary", Text: report})
}
