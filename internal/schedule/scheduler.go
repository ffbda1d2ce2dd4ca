package schedule

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
)

// Sender transmits commands; the connection supervisor implements it.
type Sender interface {
	Send(cmd protocol.Outbound) error
}

type Config struct {
	// Step is the countdown granularity.
	Step time.Duration
	// TurnDuration is the local turn deadline; a server-provided value on the
	// room overrides it.
	TurnDuration time.Duration
	// ReadyDuration is the fallback auto-ready deadline when the server sends
	// no configuration.
	ReadyDuration time.Duration
	// FallbackDelay is how long after the queue drains to wait for the
	// server-side auto-roll before issuing the client fallback.
	FallbackDelay time.Duration
}

func (c *Config) fillDefaults() {
	if c.Step <= 0 {
		c.Step = 100 * time.Millisecond
	}
	if c.TurnDuration <= 0 {
		c.TurnDuration = 15 * time.Second
	}
	if c.ReadyDuration <= 0 {
		c.ReadyDuration = 30 * time.Second
	}
	if c.FallbackDelay <= 0 {
		c.FallbackDelay = 2 * time.Second
	}
}

// countdown is one deadline instance ticking down in fixed steps. gen guards
// against a step callback that was already in flight when the countdown was
// stopped or re-armed.
type countdown struct {
	active    bool
	key       string // identity of the condition that armed it
	remaining time.Duration
	timer     clock.Timer
	gen       int
}

func (c *countdown) stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.active = false
	c.gen++
}

// Scheduler owns the turn and ready deadline timers plus the remote auto-roll
// fallback. Evaluate is called by the session after every state change; timer
// callbacks re-check their condition because state may have moved while they
// were pending. Not goroutine-safe; session-loop use only.
type Scheduler struct {
	log     *zap.Logger
	model   *room.Model
	localID string
	send    Sender
	sched   clock.Scheduler
	cfg     Config

	turn  countdown
	ready countdown

	// firedTurnKey / readyFired suppress re-arming between an expiry (or
	// manual action) and the server state change that retires the condition.
	firedTurnKey string
	readyFired   bool

	// pendingFallback holds one outstanding fallback per auto-controlled
	// player id.
	pendingFallback map[string]clock.Timer

	onTick func(kind string, remaining time.Duration)
}

func New(log *zap.Logger, model *room.Model, localID string, send Sender, sched clock.Scheduler, cfg Config) *Scheduler {
	cfg.fillDefaults()
	return &Scheduler{
		log:             log.Named("schedule"),
		model:           model,
		localID:         localID,
		send:            send,
		sched:           sched,
		cfg:             cfg,
		pendingFallback: map[string]clock.Timer{},
		onTick:          func(string, time.Duration) {},
	}
}

// OnTick registers a display hook invoked on every countdown step.
func (s *Scheduler) OnTick(fn func(kind string, remaining time.Duration)) { s.onTick = fn }

// TurnRemaining is zero when the turn timer is disarmed.
func (s *Scheduler) TurnRemaining() time.Duration {
	if !s.turn.active {
		return 0
	}
	return s.turn.remaining
}

func (s *Scheduler) ReadyRemaining() time.Duration {
	if !s.ready.active {
		return 0
	}
	return s.ready.remaining
}

// Evaluate re-derives both timer conditions from the room model, arming or
// cancelling as needed. Safe to call after any state transition.
func (s *Scheduler) Evaluate() {
	s.evaluateTurn()
	s.evaluateReady()
}

func (s *Scheduler) evaluateTurn() {
	phase := s.model.EffectivePhase()
	if s.model.CurrentTurnID != s.localID {
		// The turn moving away retires the fired condition. Tiebreakers hand
		// the same player the turn again within one round; that is a fresh
		// deadline.
		s.firedTurnKey = ""
	}
	key := turnKey(s.model.CurrentTurnID, s.model.Round)
	want := phase == room.PhasePlaying &&
		s.model.CurrentTurnID == s.localID &&
		!s.model.IsAutoControlled(s.localID) &&
		key != s.firedTurnKey

	switch {
	case want && s.turn.active && s.turn.key == key:
		// already counting this turn
	case want:
		d := s.cfg.TurnDuration
		if s.model.TurnDurationSec > 0 {
			d = time.Duration(s.model.TurnDurationSec) * time.Second
		}
		s.arm(&s.turn, "turn", key, d, s.expireTurn)
	case s.turn.active:
		s.turn.stop()
	}
}

func (s *Scheduler) evaluateReady() {
	localReady := false
	if p, ok := s.model.PlayerByID(s.localID); ok {
		localReady = p.Ready
	}
	want := s.model.EffectivePhase() == room.PhaseReady &&
		s.model.IsSelected(s.localID) &&
		!localReady &&
		!s.readyFired

	switch {
	case want && s.ready.active:
		// keep the running countdown
	case want:
		d := s.cfg.ReadyDuration
		if s.model.ReadyDurationSec > 0 {
			d = time.Duration(s.model.ReadyDurationSec) * time.Second
		}
		s.arm(&s.ready, "ready", "ready", d, s.expireReady)
	default:
		s.ready.stop()
		if s.model.EffectivePhase() != room.PhaseReady {
			s.readyFired = false
		}
	}
}

func (s *Scheduler) arm(c *countdown, kind, key string, d time.Duration, expire func()) {
	c.stop()
	c.active = true
	c.key = key
	c.remaining = d
	s.log.Debug("timer armed", zap.String("kind", kind), zap.Duration("duration", d))
	s.tick(c, kind, expire)
}

func (s *Scheduler) tick(c *countdown, kind string, expire func()) {
	gen := c.gen
	c.timer = s.sched.AfterFunc(s.cfg.Step, func() {
		if !c.active || gen != c.gen {
			return // cancelled or re-armed while the step was pending
		}
		c.remaining -= s.cfg.Step
		if c.remaining > 0 {
			s.onTick(kind, c.remaining)
			s.tick(c, kind, expire)
			return
		}
		c.remaining = 0
		c.active = false
		expire()
	})
}

func (s *Scheduler) expireTurn() {
	// Re-check: the turn may have moved while the final step was pending.
	if s.model.EffectivePhase() != room.PhasePlaying || s.model.CurrentTurnID != s.localID {
		return
	}
	s.firedTurnKey = turnKey(s.model.CurrentTurnID, s.model.Round)
	s.log.Info("turn deadline hit, auto-rolling")
	if err := s.send.Send(protocol.Roll{}); err != nil {
		s.log.Warn("auto-roll send failed", zap.Error(err))
	}
}

func (s *Scheduler) expireReady() {
	if s.model.EffectivePhase() != room.PhaseReady || !s.model.IsSelected(s.localID) {
		return
	}
	s.readyFired = true
	s.log.Info("ready deadline hit, auto-readying")
	if err := s.send.Send(protocol.Ready{}); err != nil {
		s.log.Warn("auto-ready send failed", zap.Error(err))
	}
}

// NotifyManualRoll cancels the turn deadline after the user rolled themselves.
func (s *Scheduler) NotifyManualRoll() {
	s.firedTurnKey = turnKey(s.model.CurrentTurnID, s.model.Round)
	s.turn.stop()
}

// NotifyManualReady cancels the ready deadline after the user clicked ready.
func (s *Scheduler) NotifyManualReady() {
	s.readyFired = true
	s.ready.stop()
}

// CheckRemoteFallback runs when the sequencer drains. If the turn belongs to
// an auto-controlled remote player, schedule one fallback auto-roll for them,
// unless one is already outstanding. The room id is captured now and
// re-validated at fire time so a fallback for one session can never leak into
// another.
func (s *Scheduler) CheckRemoteFallback() {
	turnID := s.model.CurrentTurnID
	if turnID == "" || turnID == s.localID {
		return
	}
	if s.model.EffectivePhase() != room.PhasePlaying || !s.model.IsAutoControlled(turnID) {
		return
	}
	if _, outstanding := s.pendingFallback[turnID]; outstanding {
		return
	}

	roomID := s.model.RoomID
	round := s.model.Round
	s.pendingFallback[turnID] = s.sched.AfterFunc(s.cfg.FallbackDelay, func() {
		delete(s.pendingFallback, turnID)
		// Stale-room guard plus full condition re-check.
		if s.model.RoomID != roomID || s.model.Round != round {
			return
		}
		if s.model.CurrentTurnID != turnID || !s.model.IsAutoControlled(turnID) {
			return
		}
		if s.model.EffectivePhase() != room.PhasePlaying {
			return
		}
		s.log.Info("issuing fallback auto-roll", zap.String("player", turnID))
		if err := s.send.Send(protocol.AutoRoll{UserID: turnID, RoomID: roomID}); err != nil {
			s.log.Warn("fallback auto-roll send failed", zap.Error(err))
		}
	})
}

// Teardown cancels everything; nothing may fire against a closed session.
func (s *Scheduler) Teardown() {
	s.turn.stop()
	s.ready.stop()
	for id, t := range s.pendingFallback {
		t.Stop()
		delete(s.pendingFallback, id)
	}
}

func turnKey(userID string, round int) string {
	return fmt.Sprintf("%s#%d", userID, round)
}
