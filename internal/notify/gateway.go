package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnection constants
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	// HelloTimeout bounds the wait for the first gateway frame
	HelloTimeout = 10 * time.Second

	// Write timeout
	WriteTimeout = 10 * time.Second

	// DefaultGatewayURL is the Discord gateway endpoint
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
)

// Gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// closeAuthenticationFailed is sent by the gateway for a bad token.
const closeAuthenticationFailed = 4004

// Gateway status values
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusFailed       = "failed"
)

var (
	errReconnectRequested = errors.New("gateway requested reconnect")
	errInvalidSession     = errors.New("gateway invalidated session")
	errHeartbeatTimeout   = errors.New("heartbeat not acknowledged")
)

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Gateway keeps a Discord gateway session online so the bot shows as present.
// Alerts are posted over REST; the session only heartbeats and reconnects.
type Gateway struct {
	url     string
	token   string
	conn    *websocket.Conn
	connMu  sync.Mutex
	writeMu sync.Mutex

	initialBackoff time.Duration
	backoff        time.Duration

	seq      int64
	seqMu    sync.Mutex
	acked    bool
	ackedMu  sync.Mutex
	status   string
	statusMu sync.RWMutex

	onStatus func(string)
	fatal    chan error
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGateway creates a gateway session. onStatus, if non-nil, is called on
// every status change.
func NewGateway(url, token string, onStatus func(string)) *Gateway {
	if url == "" {
		url = DefaultGatewayURL
	}
	return &Gateway{
		url:            url,
		token:          token,
		initialBackoff: InitialBackoff,
		backoff:        InitialBackoff,
		status:         StatusDisconnected,
		onStatus:       onStatus,
		fatal:          make(chan error, 1),
		stopChan:       make(chan struct{}),
	}
}

// Start runs the session with automatic reconnection.
func (g *Gateway) Start(ctx context.Context) {
	g.wg.Add(1)
	go g.runLoop(ctx)
}

// Stop closes the session and waits for it to exit.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
	g.closeConnection()
	g.wg.Wait()
}

// Fatal receives an error when the session cannot continue, such as rejected
// credentials.
func (g *Gateway) Fatal() <-chan error {
	return g.fatal
}

// Status returns the current session status.
func (g *Gateway) Status() string {
	g.statusMu.RLock()
	defer g.statusMu.RUnlock()
	return g.status
}

// runLoop handles connection, reading, and reconnection.
func (g *Gateway) runLoop(ctx context.Context) {
	defer g.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("gateway_loop_stopping", "reason", "context cancelled")
			g.setStatus(StatusDisconnected)
			return
		case <-g.stopChan:
			slog.Info("gateway_loop_stopping", "reason", "stop signal")
			g.setStatus(StatusDisconnected)
			return
		default:
		}

		g.setStatus(StatusConnecting)
		interval, err := g.connect(ctx)
		if err != nil {
			slog.Error("gateway_connect_failed", "error", err, "backoff", g.backoff)
			g.closeConnection()
			g.setStatus(StatusDisconnected)
			g.waitBackoff(ctx)
			continue
		}

		err = g.session(ctx, interval)
		g.closeConnection()

		if isAuthFailure(err) {
			slog.Error("gateway_auth_failed", "error", err)
			g.setStatus(StatusFailed)
			select {
			case g.fatal <- fmt.Errorf("discord gateway: %w", ErrUnauthorized):
			default:
			}
			return
		}
		if err != nil {
			slog.Warn("gateway_session_ended", "error", err)
		}
		g.setStatus(StatusDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-g.stopChan:
			return
		default:
			g.waitBackoff(ctx)
		}
	}
}

// connect dials the gateway, waits for Hello and identifies. It returns the
// heartbeat interval announced by the server.
func (g *Gateway) connect(ctx context.Context) (time.Duration, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		if resp != nil {
			return 0, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return 0, fmt.Errorf("dial failed: %w", err)
	}

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()

	conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", hello.Op)
	}

	var data helloData
	if err := json.Unmarshal(hello.D, &data); err != nil || data.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid hello payload: %s", string(hello.D))
	}

	identify := identifyData{
		Token: g.token,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "launchwatch",
			Device:  "launchwatch",
		},
	}
	if err := g.send(opIdentify, identify); err != nil {
		return 0, fmt.Errorf("identify failed: %w", err)
	}

	// Reset backoff on successful handshake
	g.backoff = g.initialBackoff
	g.setAcked(true)

	slog.Info("gateway_connected", "endpoint", g.url, "heartbeat_interval", time.Duration(data.HeartbeatInterval)*time.Millisecond)
	return time.Duration(data.HeartbeatInterval) * time.Millisecond, nil
}

// session heartbeats and reads frames until the connection ends.
func (g *Gateway) session(ctx context.Context, interval time.Duration) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbErr := make(chan error, 1)
	g.wg.Add(1)
	go g.heartbeatLoop(sessCtx, interval, hbErr)

	readErr := make(chan error, 1)
	go func() { readErr <- g.readLoop(interval) }()

	select {
	case err := <-readErr:
		return err
	case err := <-hbErr:
		g.closeConnection()
		<-readErr
		return err
	case <-ctx.Done():
		g.closeConnection()
		<-readErr
		return nil
	case <-g.stopChan:
		g.closeConnection()
		<-readErr
		return nil
	}
}

// readLoop reads frames from the gateway.
func (g *Gateway) readLoop(interval time.Duration) error {
	g.connMu.Lock()
	conn := g.conn
	g.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	for {
		// Two missed heartbeats without any frame means the link is dead
		conn.SetReadDeadline(time.Now().Add(2*interval + WriteTimeout))

		var msg gatewayPayload
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		if msg.S != nil {
			g.seqMu.Lock()
			g.seq = *msg.S
			g.seqMu.Unlock()
		}

		switch msg.Op {
		case opDispatch:
			if msg.T == "READY" {
				g.setStatus(StatusConnected)
				slog.Info("gateway_ready")
			} else {
				slog.Debug("gateway_dispatch", "type", msg.T)
			}
		case opHeartbeat:
			if err := g.sendHeartbeat(); err != nil {
				return fmt.Errorf("heartbeat reply failed: %w", err)
			}
		case opHeartbeatAck:
			g.setAcked(true)
		case opReconnect:
			return errReconnectRequested
		case opInvalidSession:
			return errInvalidSession
		default:
			slog.Debug("gateway_message", "op", msg.Op)
		}
	}
}

// heartbeatLoop sends heartbeats at the server interval. A heartbeat that was
// not acknowledged before the next one is due ends the session.
func (g *Gateway) heartbeatLoop(ctx context.Context, interval time.Duration, errs chan<- error) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !g.isAcked() {
				slog.Warn("gateway_heartbeat_timeout", "interval", interval)
				errs <- errHeartbeatTimeout
				return
			}
			g.setAcked(false)
			if err := g.sendHeartbeat(); err != nil {
				slog.Warn("gateway_heartbeat_failed", "error", err)
				errs <- err
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat() error {
	g.seqMu.Lock()
	seq := g.seq
	g.seqMu.Unlock()

	if seq == 0 {
		return g.send(opHeartbeat, nil)
	}
	return g.send(opHeartbeat, seq)
}

// send writes a payload with opcode op.
func (g *Gateway) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	g.connMu.Lock()
	conn := g.conn
	g.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return conn.WriteJSON(gatewayPayload{Op: op, D: raw})
}

func (g *Gateway) setAcked(v bool) {
	g.ackedMu.Lock()
	g.acked = v
	g.ackedMu.Unlock()
}

func (g *Gateway) isAcked() bool {
	g.ackedMu.Lock()
	defer g.ackedMu.Unlock()
	return g.acked
}

func (g *Gateway) setStatus(status string) {
	g.statusMu.Lock()
	changed := g.status != status
	g.status = status
	g.statusMu.Unlock()

	if changed && g.onStatus != nil {
		g.onStatus(status)
	}
}

// closeConnection safely closes the WebSocket connection.
func (g *Gateway) closeConnection() {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
		slog.Info("gateway_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (g *Gateway) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(g.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := g.backoff + jitter

	slog.Debug("gateway_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-g.stopChan:
	case <-time.After(wait):
	}

	// Increase backoff for next attempt
	g.backoff = time.Duration(float64(g.backoff) * BackoffFactor)
	if g.backoff > MaxBackoff {
		g.backoff = MaxBackoff
	}
}

func isAuthFailure(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed
}
