package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dicearena/client/internal/chat"
	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/conn"
	"github.com/dicearena/client/internal/kickvote"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
	"github.com/dicearena/client/internal/schedule"
	"github.com/dicearena/client/internal/sequencer"
)

var (
	ErrSessionClosed       = errors.New("session closed")
	ErrNotAdmin            = errors.New("viewer is not the room host")
	ErrInsufficientBalance = errors.New("insufficient balance for entry fee")
)

// ConnControl is what the session needs from the connection supervisor.
type ConnControl interface {
	Send(cmd protocol.Outbound) error
	SetRejoinRoom(roomID string)
	State() conn.State
}

// BalanceChecker is the entry-fee confirmation boundary. The real service
// lives elsewhere; the session only needs permitted vs insufficient.
type BalanceChecker interface {
	Confirm(entryFee int) error
}

type allowAll struct{}

func (allowAll) Confirm(int) error { return nil }

// Notice is an application error surfaced to the UI, never silently retried.
type Notice struct {
	Code    string
	Message string
}

// View is a read-only copy of session state for diagnostics and rendering.
type View struct {
	SessionID      string
	ConnState      conn.State
	Room           *room.Model
	Rooms          []protocol.RoomSummary
	ActiveChannel  chat.Channel
	Unread         map[chat.Channel]int
	TurnRemaining  time.Duration
	ReadyRemaining time.Duration
}

type Config struct {
	LocalID string

	// Animator overrides the default timed settle animation (render layers,
	// tests).
	Animator sequencer.Animator
	Hooks    sequencer.Hooks

	AnimationDuration time.Duration
	ResultPause       time.Duration
	Timers            schedule.Config

	Balance BalanceChecker
	Notify  func(Notice)
	Clock   clock.Scheduler
}

// Session is the single-goroutine actor owning the room model. Every state
// transition — network message, timer callback, animation completion, user
// intent — arrives through the inbox and runs on the loop goroutine, so no
// component needs a lock of its own.
type Session struct {
	inbox chan msg
	log   *zap.Logger
	id    string

	localID string
	conn    ConnControl
	balance BalanceChecker
	notify  func(Notice)

	model  *room.Model
	rooms  map[string]protocol.RoomSummary
	seq    *sequencer.Sequencer
	timers *schedule.Scheduler
	votes  *kickvote.Coordinator
	chat   *chat.Controller

	ctx    context.Context
	cancel context.CancelFunc
}

type msg interface{ isSessionMsg() }

// fromServer carries one decoded inbound frame.
type fromServer struct{ m protocol.Inbound }

// run executes a closure on the loop goroutine: user intents and loop-bound
// timer callbacks.
type run struct{ fn func() }

type getView struct{ reply chan View }

type shutdown struct{}

func (fromServer) isSessionMsg() {}
func (run) isSessionMsg()        {}
func (getView) isSessionMsg()    {}
func (shutdown) isSessionMsg()   {}

func New(parent context.Context, log *zap.Logger, cc ConnControl, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Balance == nil {
		cfg.Balance = allowAll{}
	}
	if cfg.Notify == nil {
		cfg.Notify = func(Notice) {}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	s := &Session{
		inbox:   make(chan msg, 64),
		id:      uuid.NewString(),
		localID: cfg.LocalID,
		conn:    cc,
		balance: cfg.Balance,
		notify:  cfg.Notify,
		model:   room.New(),
		rooms:   map[string]protocol.RoomSummary{},
		ctx:     ctx,
		cancel:  cancel,
	}
	s.log = log.Named("session").With(zap.String("session_id", s.id))

	// Timer callbacks hop back onto the loop goroutine through the inbox.
	loop := loopScheduler{inner: cfg.Clock, post: s.post}

	anim := cfg.Animator
	if anim == nil {
		anim = sequencer.NewTimedAnimator(loop, cfg.AnimationDuration, cfg.Hooks)
	}
	s.seq = sequencer.New(s.log, s.model, anim, loop, cfg.ResultPause)
	s.timers = schedule.New(s.log, s.model, cfg.LocalID, cc, loop, cfg.Timers)
	s.votes = kickvote.New(s.log, s.model, cfg.LocalID, cc, loop)
	s.chat = chat.New(s.log, s.model, cfg.LocalID, cc)

	// Once the queue drains, check whether the new current-turn player needs
	// the remote auto-roll fallback.
	s.seq.OnDrain(s.timers.CheckRemoteFallback)

	go s.loop()
	return s
}

// Sink is the supervisor's delivery point for decoded frames.
func (s *Session) Sink(m protocol.Inbound) {
	select {
	case s.inbox <- fromServer{m: m}:
	case <-s.ctx.Done():
	}
}

// ConnStateChanged is wired to the supervisor's state callback. A terminal
// connectivity error is the only one the user ever sees.
func (s *Session) ConnStateChanged(st conn.State, err error) {
	s.post(func() {
		if err != nil {
			s.notify(Notice{Code: "connectivity", Message: err.Error()})
		}
		s.log.Info("connection state", zap.String("state", string(st)))
	})
}

// Close tears the session down; all timers are cancelled so nothing fires
// against a dead session.
func (s *Session) Close() {
	select {
	case s.inbox <- shutdown{}:
	case <-s.ctx.Done():
	}
}

func (s *Session) post(fn func()) {
	select {
	case s.inbox <- run{fn: fn}:
	case <-s.ctx.Done():
	}
}

// do runs a user intent on the loop and reports its outcome.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- run{fn: func() { reply <- fn() }}:
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case m := <-s.inbox:
			switch ev := m.(type) {
			case fromServer:
				s.dispatch(ev.m)
			case run:
				ev.fn()
			case getView:
				ev.reply <- s.view()
			case shutdown:
				s.teardown()
				return
			}
		}
	}
}

func (s *Session) teardown() {
	s.timers.Teardown()
	s.votes.Teardown()
	s.cancel()
}

// dispatch applies one server message. Membership and phase transitions end
// with a chat refresh and a timer re-evaluation; both are cheap and
// idempotent.
func (s *Session) dispatch(m protocol.Inbound) {
	switch ev := m.(type) {
	case *protocol.SystemError:
		s.notify(Notice{Code: ev.Code, Message: ev.Message})
		return

	case *protocol.RoomList:
		s.rooms = map[string]protocol.RoomSummary{}
		for _, r := range ev.Rooms {
			s.rooms[r.RoomID] = r
		}
		return
	case *protocol.RoomCreated:
		s.rooms[ev.Room.RoomID] = ev.Room
		return
	case *protocol.RoomRemoved:
		delete(s.rooms, ev.RoomID)
		return

	case *protocol.RoomState:
		rep := s.model.ApplySnapshot(ev)
		if rep.FlushQueue {
			s.seq.Flush()
		}
		// The snapshot materializes the dice view; buffered events replay.
		s.seq.SetViewReady(true)
		s.conn.SetRejoinRoom(rep.RoomID)
		// A rejoin snapshot can land mid-turn of an auto-controlled player.
		if s.seq.Idle() {
			s.timers.CheckRemoteFallback()
		}

	case *protocol.NotInRoom:
		s.leaveLocally()

	case *protocol.PlayerJoined:
		s.model.ApplyPlayerJoined(ev.Player)
	case *protocol.LobbyJoined:
		s.model.ApplyLobbyJoined(ev.Player)
	case *protocol.LobbyUpdated:
		s.model.ApplyLobbyUpdated(ev.Lobby)
	case *protocol.SpectatorJoined:
		s.model.ApplySpectatorJoined(ev.Spectator)
	case *protocol.SpectatorLeft:
		s.model.ApplySpectatorLeft(ev.UserID)
	case *protocol.PlayerLeft:
		s.model.ApplyPlayerLeft(ev.UserID)
		s.votes.OnLeft(ev.UserID)
	case *protocol.PlayerSelected:
		s.model.ApplyPlayerSelected(ev.UserID)
	case *protocol.PlayerKicked:
		s.model.ApplyPlayerKicked(ev.UserID)
		s.votes.OnLeft(ev.UserID)
		if ev.UserID == s.localID {
			s.leaveLocally()
			return
		}
	case *protocol.PlayerBanned:
		s.model.ApplyPlayerBanned(ev.UserID)
		s.votes.OnLeft(ev.UserID)
		if ev.UserID == s.localID {
			s.leaveLocally()
			return
		}
	case *protocol.PlayerUnbanned:
		s.model.ApplyPlayerUnbanned(ev.UserID)
	case *protocol.RequestToPlayAccepted:
		s.model.ApplyRequestToPlayAccepted(ev.UserID)
	case *protocol.RemovedFromGame:
		s.model.ApplyRemovedFromGame(s.localID)

	case *protocol.PlayerDisconnected:
		s.votes.OnDisconnected(ev.UserID, ev.DeadlineSec)
		return
	case *protocol.PlayerRejoined:
		s.votes.OnRejoined(ev.UserID)
		return
	case *protocol.AutoControlEnabled:
		s.model.ApplyAutoControl(ev.UserID, true)
		s.votes.OnAutoControl(ev.UserID)
		if s.seq.Idle() {
			s.timers.CheckRemoteFallback()
		}
	case *protocol.AutoControlDisabled:
		s.model.ApplyAutoControl(ev.UserID, false)

	case *protocol.GameStarting:
		s.model.ApplyGameStarting(ev.SelectedIDs, ev.ReadyDuration)
	case *protocol.GameStarted:
		s.model.ApplyGameStarted(ev.FirstTurnID)

	case *protocol.TurnChanged:
		s.model.ApplyTurnChanged(ev.UserID, ev.Round)
		if s.seq.Idle() {
			s.timers.CheckRemoteFallback()
		}
	case *protocol.RoundComplete:
		s.model.ApplyRoundComplete(ev.Round)

	case *protocol.DiceRolled, *protocol.RoundResult, *protocol.TiebreakerStarted, *protocol.GameOver:
		s.seq.Enqueue(m)

	case *protocol.ChatMessage:
		s.chat.OnMessage(ev)
		return
	case *protocol.ChatHistory:
		s.chat.OnHistory(ev)
		return

	default:
		s.log.Warn("unhandled message", zap.Any("message", m))
		return
	}

	s.chat.Refresh()
	s.timers.Evaluate()
}

// leaveLocally resets all room-scoped state after leave/kick/not_in_room.
func (s *Session) leaveLocally() {
	s.model.Reset()
	s.seq.Flush()
	s.seq.SetViewReady(false)
	s.conn.SetRejoinRoom("")
	s.chat.Refresh()
	s.timers.Evaluate()
}

func (s *Session) view() View {
	unread := map[chat.Channel]int{}
	for _, ch := range []chat.Channel{chat.ChannelLobby, chat.ChannelPlayers, chat.ChannelSpectators} {
		unread[ch] = s.chat.Unread(ch)
	}
	rooms := make([]protocol.RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	return View{
		SessionID:      s.id,
		ConnState:      s.conn.State(),
		Room:           s.model.Clone(),
		Rooms:          rooms,
		ActiveChannel:  s.chat.Active(),
		Unread:         unread,
		TurnRemaining:  s.timers.TurnRemaining(),
		ReadyRemaining: s.timers.ReadyRemaining(),
	}
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() (View, error) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- getView{reply: reply}:
	case <-s.ctx.Done():
		return View{}, ErrSessionClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.ctx.Done():
		return View{}, ErrSessionClosed
	}
}

// loopScheduler makes every timer callback re-enter the session loop instead
// of firing on a timer goroutine.
type loopScheduler struct {
	inner clock.Scheduler
	post  func(fn func())
}

func (l loopScheduler) Now() time.Time { return l.inner.Now() }

func (l loopScheduler) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return l.inner.AfterFunc(d, func() { l.post(fn) })
}
