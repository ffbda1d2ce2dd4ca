package sequencer

import (
	"time"

	"go.uber.org/zap"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
)

// Animator is the render boundary. AnimateRoll must eventually invoke done
// exactly once; the sequencer holds every later event until then. Callbacks
// are expected to arrive on the session goroutine.
type Animator interface {
	AnimateRoll(playerID string, value int, done func())
	ShowRoundResult(res *protocol.RoundResult)
	ShowTiebreaker(tb *protocol.TiebreakerStarted)
	ShowGameOver(g *protocol.GameOver)
}

// Sequencer serializes round events behind animations: FIFO order, at most
// one event in flight. Not goroutine-safe; the session loop is its only
// caller.
type Sequencer struct {
	log   *zap.Logger
	model *room.Model
	anim  Animator
	sched clock.Scheduler

	resultPause time.Duration

	queue     []protocol.Inbound
	inFlight  bool
	viewReady bool

	// gen invalidates in-flight completion callbacks after a Flush, so an
	// animation finishing late cannot advance a queue it no longer belongs to.
	gen        int
	pauseTimer clock.Timer

	// onDrain fires when the queue empties, used for the remote auto-roll
	// check.
	onDrain func()
}

func New(log *zap.Logger, model *room.Model, anim Animator, sched clock.Scheduler, resultPause time.Duration) *Sequencer {
	if resultPause <= 0 {
		resultPause = time.Second
	}
	return &Sequencer{
		log:         log.Named("sequencer"),
		model:       model,
		anim:        anim,
		sched:       sched,
		resultPause: resultPause,
		onDrain:     func() {},
	}
}

func (s *Sequencer) OnDrain(fn func()) { s.onDrain = fn }

// SetViewReady marks the dice view materialized. Events buffered while a
// spectator attached mid-round replay in arrival order.
func (s *Sequencer) SetViewReady(ready bool) {
	if ready && !s.viewReady {
		s.viewReady = true
		if !s.inFlight {
			s.advance()
		}
		return
	}
	s.viewReady = ready
}

func (s *Sequencer) ViewReady() bool { return s.viewReady }

// Pending reports queued-but-unprocessed events, not counting one in flight.
func (s *Sequencer) Pending() int { return len(s.queue) }

func (s *Sequencer) InFlight() bool { return s.inFlight }

// Idle reports whether nothing is queued or animating, the precondition for
// the remote auto-roll fallback.
func (s *Sequencer) Idle() bool { return !s.inFlight && len(s.queue) == 0 }

// Enqueue accepts one of DiceRolled, RoundResult, TiebreakerStarted or
// GameOver. An idle sequencer processes immediately; otherwise the event
// waits its turn.
func (s *Sequencer) Enqueue(ev protocol.Inbound) {
	switch ev.(type) {
	case *protocol.DiceRolled, *protocol.RoundResult, *protocol.TiebreakerStarted, *protocol.GameOver:
	default:
		s.log.Warn("non-round event offered to sequencer", zap.Any("event", ev))
		return
	}
	if over, ok := ev.(*protocol.GameOver); ok && s.pauseTimer != nil {
		// The post-result hold exists for visibility between rounds; a game
		// end is never held behind it.
		s.cancelPause()
		s.process(over)
		return
	}
	if !s.viewReady || s.inFlight || len(s.queue) > 0 {
		s.queue = append(s.queue, ev)
		return
	}
	s.process(ev)
}

// Flush discards every queued event and abandons the in-flight one. Called on
// snapshot arrival: the snapshot already reflects whatever those events would
// have applied.
func (s *Sequencer) Flush() {
	if n := len(s.queue); n > 0 || s.inFlight {
		s.log.Info("flushing round events", zap.Int("queued", n), zap.Bool("in_flight", s.inFlight))
	}
	s.gen++
	s.queue = nil
	s.inFlight = false
	if s.pauseTimer != nil {
		s.pauseTimer.Stop()
		s.pauseTimer = nil
	}
}

func (s *Sequencer) process(ev protocol.Inbound) {
	switch e := ev.(type) {
	case *protocol.DiceRolled:
		s.inFlight = true
		g := s.gen
		s.anim.AnimateRoll(e.UserID, e.Value, func() { s.complete(g) })

	case *protocol.RoundResult:
		s.model.ApplyScores(e.Scores)
		s.anim.ShowRoundResult(e)
		if e.WinnerID == "" {
			// Tie: routed to a tiebreaker, never a history row, no pause.
			s.advance()
			return
		}
		s.model.AppendHistory(room.RoundRecord{
			Round:    s.model.Round,
			WinnerID: e.WinnerID,
			Rolls:    e.Rolls,
		})
		if s.nextIsGameOver() {
			// The game end follows immediately; its final standings replace
			// the pause.
			s.advance()
			return
		}
		// Hold the queue so the outcome is visible before the next roll.
		s.inFlight = true
		g := s.gen
		s.pauseTimer = s.sched.AfterFunc(s.resultPause, func() { s.complete(g) })

	case *protocol.TiebreakerStarted:
		s.anim.ShowTiebreaker(e)
		s.advance()

	case *protocol.GameOver:
		s.model.ApplyGameOver(e.WinnerID, e.FinalScores)
		s.anim.ShowGameOver(e)
		// Terminal: whatever is still queued is moot.
		s.queue = nil
		s.advance()
	}
}

func (s *Sequencer) nextIsGameOver() bool {
	if len(s.queue) == 0 {
		return false
	}
	_, ok := s.queue[0].(*protocol.GameOver)
	return ok
}

// cancelPause retires the post-result hold. The generation bump keeps a pause
// callback that already fired from advancing the queue a second time.
func (s *Sequencer) cancelPause() {
	s.pauseTimer.Stop()
	s.pauseTimer = nil
	s.inFlight = false
	s.gen++
}

func (s *Sequencer) complete(g int) {
	if g != s.gen {
		return // flushed while animating
	}
	s.inFlight = false
	s.pauseTimer = nil
	s.advance()
}

func (s *Sequencer) advance() {
	if !s.viewReady {
		return
	}
	if len(s.queue) == 0 {
		s.onDrain()
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.process(next)
}
