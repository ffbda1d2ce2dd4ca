package kickvote

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
)

var (
	ErrNotPending     = errors.New("player has no pending disconnect")
	ErrDeadlineNotDue = errors.New("reconnection deadline has not elapsed")
	ErrNotEligible    = errors.New("viewer is not an eligible voter")
	ErrAlreadyVoted   = errors.New("vote already cast for this player")
)

// Sender transmits commands; the connection supervisor implements it.
type Sender interface {
	Send(cmd protocol.Outbound) error
}

// Coordinator tracks opponents' reconnection deadlines and the local viewer's
// kick votes. The authoritative kick decision is server-side; this only gates
// when the vote button is live and guarantees one vote per target.
// Not goroutine-safe; session-loop use only.
type Coordinator struct {
	log     *zap.Logger
	model   *room.Model
	localID string
	send    Sender
	sched   clock.Scheduler

	pending map[string]time.Time // userID -> reconnection deadline
	voted   map[string]bool      // targets the local viewer voted against

	ticker clock.Timer
	closed bool
	onTick func(remaining map[string]time.Duration)
}

func New(log *zap.Logger, model *room.Model, localID string, send Sender, sched clock.Scheduler) *Coordinator {
	return &Coordinator{
		log:     log.Named("kickvote"),
		model:   model,
		localID: localID,
		send:    send,
		sched:   sched,
		pending: map[string]time.Time{},
		voted:   map[string]bool{},
		onTick:  func(map[string]time.Duration) {},
	}
}

// OnTick registers the display hook fed once per second while any disconnect
// is pending.
func (c *Coordinator) OnTick(fn func(remaining map[string]time.Duration)) { c.onTick = fn }

// OnDisconnected records the reconnection deadline and wipes any stale vote
// for the player; a fresh disconnect is a fresh grace period.
func (c *Coordinator) OnDisconnected(userID string, deadlineSec int) {
	c.pending[userID] = c.sched.Now().Add(time.Duration(deadlineSec) * time.Second)
	delete(c.voted, userID)
	c.ensureTicker()
}

// OnRejoined clears pending state. Receiving it twice is the same as once.
func (c *Coordinator) OnRejoined(userID string) {
	delete(c.pending, userID)
	delete(c.voted, userID)
}

// OnAutoControl clears pending state once the server takes the seat over.
func (c *Coordinator) OnAutoControl(userID string) {
	c.OnRejoined(userID)
}

// OnLeft clears pending state when the player leaves or is kicked.
func (c *Coordinator) OnLeft(userID string) {
	c.OnRejoined(userID)
}

// Remaining reports time until userID's deadline, zero once elapsed.
func (c *Coordinator) Remaining(userID string) (time.Duration, bool) {
	deadline, ok := c.pending[userID]
	if !ok {
		return 0, false
	}
	d := deadline.Sub(c.sched.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// CanVote reports whether a kick vote against userID would be accepted
// client-side right now.
func (c *Coordinator) CanVote(userID string) error {
	deadline, ok := c.pending[userID]
	if !ok {
		return ErrNotPending
	}
	if c.sched.Now().Before(deadline) {
		return ErrDeadlineNotDue
	}
	if c.model.Role(c.localID) != room.RolePlayer || c.localID == userID {
		return ErrNotEligible
	}
	if c.voted[userID] {
		return ErrAlreadyVoted
	}
	return nil
}

// Vote casts the one-shot kick vote.
func (c *Coordinator) Vote(userID string) error {
	if err := c.CanVote(userID); err != nil {
		return err
	}
	if err := c.send.Send(protocol.VoteKickDisconnected{UserID: userID}); err != nil {
		return err
	}
	c.voted[userID] = true
	c.log.Info("kick vote cast", zap.String("target", userID))
	return nil
}

// Teardown stops the ticker; session is closing.
func (c *Coordinator) Teardown() {
	c.closed = true
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Coordinator) ensureTicker() {
	if c.ticker != nil || c.closed {
		return
	}
	c.ticker = c.sched.AfterFunc(time.Second, c.tick)
}

// tick recomputes remaining time for display and self-cancels once no
// disconnect is pending.
func (c *Coordinator) tick() {
	c.ticker = nil
	if c.closed || len(c.pending) == 0 {
		return
	}
	now := c.sched.Now()
	remaining := make(map[string]time.Duration, len(c.pending))
	for id, deadline := range c.pending {
		d := deadline.Sub(now)
		if d < 0 {
			d = 0
		}
		remaining[id] = d
	}
	c.onTick(remaining)
	c.ensureTicker()
}
