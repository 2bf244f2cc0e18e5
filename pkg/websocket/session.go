// Package websocket provides a reusable WebSocket session with bounded
// reconnection and status reporting
package websocket

import (
	"arb_monitor/internal/core"
	"arb_monitor/pkg/retry"
	"arb_monitor/pkg/telemetry"
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "arb_monitor/pkg/errors"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TextHandler handles incoming text frames.
type TextHandler func(message []byte)

// BinaryHandler handles incoming binary frames.
type BinaryHandler func(message []byte)

// StatusHandler observes session state transitions. attempt is the count of
// consecutive failed connection attempts at the time of the transition.
type StatusHandler func(status core.VenueStatus, attempt int, err error)

// Config controls a Session's connection behavior.
type Config struct {
	URL            string
	ConnectTimeout time.Duration // dial bound; defaults to 5s
	MaxAttempts    int           // consecutive failures before terminal error; defaults to 5
	Backoff        retry.BackoffPolicy
	PingInterval   time.Duration      // app-level keepalive; 0 disables
	PingFrame      func() interface{} // frame sent every PingInterval; []byte goes out as raw text, anything else as JSON
}

// Session is a websocket connection that reconnects with capped full-jitter
// backoff. After MaxAttempts consecutive dial failures it parks in a
// terminal error state until Reconnect is called.
type Session struct {
	cfg Config

	onText      TextHandler
	onBinary    BinaryHandler
	onStatus    StatusHandler
	onConnected func()

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	attempts int
	manual   bool
	terminal bool
	running  bool

	logger core.ILogger

	msgCounter   metric.Int64Counter
	connCounter  metric.Int64Counter
	reconCounter metric.Int64Counter
}

// NewSession creates a session. Handlers are registered via the On* setters
// before Start.
func NewSession(cfg Config, logger core.ILogger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff == (retry.BackoffPolicy{}) {
		cfg.Backoff = retry.DefaultBackoff
	}

	meter := telemetry.GetMeter("ws-session")
	msgCounter, _ := meter.Int64Counter("ws_messages_total",
		metric.WithDescription("Total number of WebSocket messages received"))
	connCounter, _ := meter.Int64Counter("ws_connections_total",
		metric.WithDescription("Total number of WebSocket connections initiated"))
	reconCounter, _ := meter.Int64Counter("ws_reconnect_attempts_total",
		metric.WithDescription("Total number of WebSocket reconnect attempts"))

	return &Session{
		cfg:          cfg,
		logger:       logger,
		msgCounter:   msgCounter,
		connCounter:  connCounter,
		reconCounter: reconCounter,
	}
}

// OnText sets the text frame handler.
func (s *Session) OnText(h TextHandler) { s.onText = h }

// OnBinary sets the binary frame handler.
func (s *Session) OnBinary(h BinaryHandler) { s.onBinary = h }

// OnStatus sets the status transition handler.
func (s *Session) OnStatus(h StatusHandler) { s.onStatus = h }

// OnConnected sets a callback invoked after every successful open, before
// the read loop starts. Subscription frames belong here.
func (s *Session) OnConnected(cb func()) { s.onConnected = cb }

// Start launches the connect/read loop. It is a no-op if already running.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.manual = false
	s.terminal = false
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(loopCtx)
}

// Stop performs a manual disconnect: the close frame carries a normal
// closure code, pending reconnect timers are cancelled, and no further
// reconnection is scheduled.
func (s *Session) Stop() {
	s.mu.Lock()
	s.manual = true
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "manual disconnect"), deadline)
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if s.logger != nil {
			s.logger.Warn("WebSocket session Stop: goroutines did not exit within timeout")
		}
	}
	s.closeConn()
	s.emit(core.StatusDisconnected, 0, nil)
}

// Reconnect clears the terminal state and attempt counter and starts a
// fresh connect loop.
func (s *Session) Reconnect(ctx context.Context) {
	s.mu.Lock()
	wasRunning := s.running
	cancel := s.cancel
	s.mu.Unlock()

	if wasRunning && cancel != nil {
		cancel()
		s.wg.Wait()
	}
	s.closeConn()

	s.mu.Lock()
	s.attempts = 0
	s.terminal = false
	s.manual = false
	s.running = false
	s.mu.Unlock()

	s.Start(ctx)
}

// IsConnected reports whether an open connection currently exists.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// IsTerminal reports whether the reconnect budget is exhausted.
func (s *Session) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Attempts returns the consecutive failed attempt count.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Send writes a JSON frame to the connection.
func (s *Session) Send(message interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return s.conn.WriteJSON(message)
}

// SendText writes a raw text frame. Some venues expect literal text
// heartbeats rather than JSON.
func (s *Session) SendText(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) emit(status core.VenueStatus, attempt int, err error) {
	if s.onStatus != nil {
		s.onStatus(status, attempt, err)
	}
}

func (s *Session) runLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.emit(core.StatusConnecting, s.Attempts(), nil)

		conn, err := s.dial(ctx)
		if err != nil {
			s.mu.Lock()
			s.attempts++
			attempts := s.attempts
			exhausted := attempts >= s.cfg.MaxAttempts
			s.terminal = exhausted
			s.mu.Unlock()

			s.reconCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("url", s.cfg.URL)))
			s.emit(core.StatusError, attempts, err)
			if s.logger != nil {
				s.logger.Error("WebSocket connect failed", "url", s.cfg.URL, "attempt", attempts, "error", err)
			}

			if exhausted {
				s.emit(core.StatusError, attempts, apperrors.ErrReconnectBudget)
				return
			}
			if err := s.cfg.Backoff.Sleep(ctx, attempts-1); err != nil {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.attempts = 0
		s.mu.Unlock()

		s.emit(core.StatusConnected, 0, nil)
		if s.onConnected != nil {
			s.onConnected()
		}

		pingCtx, pingCancel := context.WithCancel(ctx)
		if s.cfg.PingInterval > 0 && s.cfg.PingFrame != nil {
			s.wg.Add(1)
			go s.keepalive(pingCtx)
		}

		s.readLoop(ctx)
		pingCancel()
		s.closeConn()

		s.mu.Lock()
		manual := s.manual
		s.mu.Unlock()
		if manual || ctx.Err() != nil {
			return
		}

		s.emit(core.StatusDisconnected, 0, nil)
		if err := s.cfg.Backoff.Sleep(ctx, 0); err != nil {
			return
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	s.connCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("url", s.cfg.URL)))

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConnectTimeout, s.cfg.URL)
		}
		return nil, err
	}
	return conn, nil
}

func (s *Session) keepalive(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			switch frame := s.cfg.PingFrame().(type) {
			case []byte:
				err = s.SendText(frame)
			default:
				err = s.Send(frame)
			}
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		s.msgCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("url", s.cfg.URL)))

		switch msgType {
		case websocket.BinaryMessage:
			if s.onBinary != nil {
				s.onBinary(message)
			}
		default:
			if s.onText != nil {
				s.onText(message)
			}
		}
	}
}

func (s *Session) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
