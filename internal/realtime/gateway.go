package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/gorilla/websocket"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
)

const (
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
)

const defaultHandshakeTimeout = 5 * time.Second

type TokenVerifier interface {
	Verify(token string) (*models.Identity, error)
}

type GatewayConfig struct {
	Verifier         TokenVerifier
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Gateway authenticates websocket handshakes and keeps verified admins in the
// admins group.
type Gateway struct {
	verifier         TokenVerifier
	admins           *Group
	origins          map[string]struct{}
	handshakeTimeout time.Duration
	logger           *slog.Logger
	upgrader         websocket.Upgrader
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		verifier:         cfg.Verifier,
		admins:           NewGroup(AdminsGroup),
		origins:          make(map[string]struct{}, len(cfg.AllowedOrigins)),
		handshakeTimeout: cfg.HandshakeTimeout,
		logger:           logger.With("component", "realtime"),
	}
	for _, origin := range cfg.AllowedOrigins {
		g.origins[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      g.checkOrigin,
	}
	return g, nil
}

func (g *Gateway) Admins() *Group {
	return g.admins
}

// Emit sends an event to every admin session. The socket path never blocks on
// a slow session.
func (g *Gateway) Emit(event string, payload any) (int, error) {
	return g.admins.Emit(event, payload)
}

func (g *Gateway) Close() {
	g.admins.Close()
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), g.logger)
	meter := observability.MeterFromContext(r.Context())

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	identity, reason := g.authenticate(conn, r)
	if reason != "" {
		meter.Count("realtime.rejected", 1, sentry.WithAttributes(attribute.String("reason", reason)))
		logger.Info("realtime handshake rejected", "reason", reason)
		g.reject(conn, reason)
		return
	}

	client := newClient(conn, identity)
	client.enqueueFrame(Frame{Type: FrameConnected})
	g.admins.Join(client)
	go client.writePump()

	meter.Count("realtime.connected", 1)
	logger.Info("admin connected", "user_id", identity.UserID.String(), "sessions", g.admins.Size())

	client.readPump()

	g.admins.Leave(client)
	logger.Info("admin disconnected", "user_id", identity.UserID.String(), "sessions", g.admins.Size())
}

// authenticate returns the verified identity or a rejection reason. The token
// comes from ?token= or from an auth frame sent first.
func (g *Gateway) authenticate(conn *websocket.Conn, r *http.Request) (*models.Identity, string) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = g.readAuthFrame(conn)
	}
	if token == "" {
		return nil, ReasonUnauthorized
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		return nil, ReasonUnauthorized
	}
	if !identity.IsAdmin() {
		return nil, ReasonForbidden
	}
	return identity, ""
}

func (g *Gateway) readAuthFrame(conn *websocket.Conn) string {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.handshakeTimeout)) //nolint
	defer func() {
		_ = conn.SetReadDeadline(time.Time{}) //nolint
	}()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ""
	}
	if frame.Type != FrameAuth || frame.Auth == nil {
		return ""
	}
	token := strings.TrimSpace(frame.Auth.Token)
	if bearer, err := auth.BearerToken(token); err == nil {
		token = bearer
	}
	return token
}

func (g *Gateway) reject(conn *websocket.Conn, reason string) {
	defer func() {
		_ = conn.Close() //nolint
	}()

	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline) //nolint
	if err := conn.WriteJSON(Frame{Type: FrameConnectError, Message: reason}); err != nil {
		return
	}
	_ = conn.WriteControl( //nolint
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		deadline,
	)
}

// checkOrigin admits listed origins. Requests without an Origin header come
// from non-browser clients and still have to authenticate.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := g.origins[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}
