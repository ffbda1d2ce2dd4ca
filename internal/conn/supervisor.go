package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
)

// Conn is the duplex transport seam; wsConn adapts a real websocket, tests
// supply an in-memory pipe.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Conn to the server.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer is the production Dialer.
func WebsocketDialer(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct{ c *websocket.Conn }

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}

type Config struct {
	URL    string
	UserID string
	Token  string

	// RejoinRoomID, when set, puts the supervisor in game mode: after
	// authentication it rejoins the room instead of requesting the room list.
	RejoinRoomID string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BackoffBase       time.Duration
	MaxAttempts       int

	WriteTimeout time.Duration
}

func (c *Config) fillDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// Supervisor owns the connection lifecycle: handshake, heartbeat keep-alive
// and exponential-backoff reconnection. Decoded messages are handed to the
// sink in arrival order; connection-lifecycle frames (welcome, authenticated,
// heartbeat acks) are consumed here.
type Supervisor struct {
	log   *zap.Logger
	cfg   Config
	dial  Dialer
	sched clock.Scheduler

	sink    func(protocol.Inbound)
	onState func(State, error)

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      int // bumps per connection; stale timer callbacks check it
	attempts int
	closed   bool

	hbTimer   clock.Timer
	hbTimeout clock.Timer
	retry     clock.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSupervisor(parent context.Context, log *zap.Logger, cfg Config, dial Dialer, sched clock.Scheduler, sink func(protocol.Inbound)) *Supervisor {
	cfg.fillDefaults()
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		log:     log.Named("conn"),
		cfg:     cfg,
		dial:    dial,
		sched:   sched,
		sink:    sink,
		onState: func(State, error) {},
		state:   StateDisconnected,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnState registers the connectivity callback. The terminal retries-exhausted
// error is the only one surfaced; individual drops recover silently.
func (s *Supervisor) OnState(fn func(State, error)) { s.onState = fn }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetRejoinRoom switches between lobby mode (empty id) and game mode for the
// next successful authentication.
func (s *Supervisor) SetRejoinRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RejoinRoomID = roomID
}

// Connect opens the connection unless one is already being opened. An
// explicit connect supersedes any pending backoff retry and restores the full
// retry budget.
func (s *Supervisor) Connect() {
	s.mu.Lock()
	if s.closed || s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.attempts = 0
	s.state = StateConnecting
	s.mu.Unlock()
	s.notify(StateConnecting, nil)
	go s.open()
}

// Send transmits while connected and drops with a warning otherwise. No
// application message is buffered or retried here; callers decide whether to
// resend.
func (s *Supervisor) Send(cmd protocol.Outbound) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		s.log.Warn("dropping command while not connected", zap.String("kind", protocol.Kind(cmd)))
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()
	return s.write(conn, cmd)
}

func (s *Supervisor) write(conn Conn, cmd protocol.Outbound) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}

// Close tears the supervisor down; nothing reconnects afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.state = StateDisconnected
	conn := s.conn
	s.conn = nil
	s.stopTimersLocked()
	s.mu.Unlock()
	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Supervisor) open() {
	conn, err := s.dial(s.ctx, s.cfg.URL)
	if err != nil {
		s.log.Warn("dial failed", zap.Error(err))
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	prev := s.conn
	s.conn = conn
	s.gen++
	gen := s.gen
	// Successful open resets the retry budget.
	s.attempts = 0
	s.mu.Unlock()

	// A connection superseded by this one gets closed; its read pump sees the
	// generation bump and exits silently.
	if prev != nil {
		_ = prev.Close()
	}

	s.readPump(conn, gen)
}

func (s *Supervisor) readPump(conn Conn, gen int) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			stale := gen != s.gen || s.closed
			s.mu.Unlock()
			if stale {
				return
			}
			s.log.Info("connection closed", zap.Error(err))
			s.scheduleReconnect()
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Protocol error: drop the single frame, session state untouched.
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.handle(conn, gen, msg)
	}
}

func (s *Supervisor) handle(conn Conn, gen int, msg protocol.Inbound) {
	switch msg.(type) {
	case *protocol.Welcome:
		if err := s.write(conn, protocol.Authenticate{UserID: s.cfg.UserID, Token: s.cfg.Token}); err != nil {
			s.log.Warn("authenticate send failed", zap.Error(err))
		}
		return

	case *protocol.Authenticated:
		s.mu.Lock()
		if gen != s.gen || s.closed {
			s.mu.Unlock()
			return
		}
		s.state = StateConnected
		rejoin := s.cfg.RejoinRoomID
		s.mu.Unlock()

		s.notify(StateConnected, nil)
		s.armHeartbeat(conn, gen)

		if rejoin != "" {
			_ = s.Send(protocol.RejoinRoom{RoomID: rejoin})
		} else {
			_ = s.Send(protocol.ListRooms{})
		}
		return

	case *protocol.HeartbeatAck:
		s.mu.Lock()
		if gen == s.gen && s.hbTimeout != nil {
			s.hbTimeout.Stop()
			s.hbTimeout = nil
		}
		s.mu.Unlock()
		return
	}

	s.sink(msg)
}

// armHeartbeat sends a probe every interval and forces the socket closed when
// an ack misses its shorter timeout; the resulting read error drives the
// normal reconnect path.
func (s *Supervisor) armHeartbeat(conn Conn, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return
	}
	s.hbTimer = s.sched.AfterFunc(s.cfg.HeartbeatInterval, func() {
		s.mu.Lock()
		if gen != s.gen || s.closed || s.state != StateConnected {
			s.mu.Unlock()
			return
		}
		s.hbTimeout = s.sched.AfterFunc(s.cfg.HeartbeatTimeout, func() {
			s.mu.Lock()
			stale := gen != s.gen || s.closed
			s.mu.Unlock()
			if stale {
				return
			}
			s.log.Warn("heartbeat ack missed, forcing close")
			_ = conn.Close()
		})
		s.mu.Unlock()

		if err := s.write(conn, protocol.Heartbeat{}); err != nil {
			s.log.Warn("heartbeat send failed", zap.Error(err))
		}
		s.armHeartbeat(conn, gen)
	})
}

func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimersLocked()
	s.conn = nil
	s.gen++
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		s.state = StateDisconnected
		s.mu.Unlock()
		s.log.Error("reconnect budget exhausted")
		s.notify(StateDisconnected, ErrRetriesExhausted)
		return
	}
	s.state = StateReconnecting
	delay := s.cfg.BackoffBase << (s.attempts - 1)
	attempt := s.attempts
	s.retry = s.sched.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		go s.open()
	})
	s.mu.Unlock()

	s.log.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	s.notify(StateReconnecting, nil)
}

func (s *Supervisor) stopTimersLocked() {
	for _, t := range []clock.Timer{s.hbTimer, s.hbTimeout, s.retry} {
		if t != nil {
			t.Stop()
		}
	}
	s.hbTimer, s.hbTimeout, s.retry = nil, nil, nil
}

func (s *Supervisor) notify(st State, err error) {
	s.onState(st, err)
}
