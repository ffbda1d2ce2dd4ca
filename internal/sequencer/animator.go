package sequencer

import (
	"math/rand"
	"time"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
)

// FrameFunc receives die faces during the settle animation. settled is true
// exactly once per roll, on the frame showing the server-reported value.
type FrameFunc func(playerID string, face int, settled bool)

// Hooks lets a render layer observe sequenced events without owning timing.
type Hooks struct {
	Frame      FrameFunc
	Result     func(res *protocol.RoundResult)
	Tiebreaker func(tb *protocol.TiebreakerStarted)
	GameOver   func(g *protocol.GameOver)
}

// TimedAnimator is the default Animator: a fixed-duration settle animation of
// rapid randomized faces converging to the server value, on exactly the one
// die belonging to the rolling player.
type TimedAnimator struct {
	sched     clock.Scheduler
	duration  time.Duration
	frameStep time.Duration
	random    *rand.Rand
	hooks     Hooks
}

func NewTimedAnimator(sched clock.Scheduler, duration time.Duration, hooks Hooks) *TimedAnimator {
	if duration <= 0 {
		duration = 900 * time.Millisecond
	}
	return &TimedAnimator{
		sched:     sched,
		duration:  duration,
		frameStep: 75 * time.Millisecond,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
		hooks:     hooks,
	}
}

func (a *TimedAnimator) AnimateRoll(playerID string, value int, done func()) {
	a.frame(playerID, value, a.duration, done)
}

func (a *TimedAnimator) frame(playerID string, value int, left time.Duration, done func()) {
	if left <= a.frameStep {
		a.sched.AfterFunc(left, func() {
			a.emit(playerID, value, true)
			done()
		})
		return
	}
	a.sched.AfterFunc(a.frameStep, func() {
		a.emit(playerID, 1+a.random.Intn(6), false)
		a.frame(playerID, value, left-a.frameStep, done)
	})
}

func (a *TimedAnimator) emit(playerID string, face int, settled bool) {
	if a.hooks.Frame != nil {
		a.hooks.Frame(playerID, face, settled)
	}
}

func (a *TimedAnimator) ShowRoundResult(res *protocol.RoundResult) {
	if a.hooks.Result != nil {
		a.hooks.Result(res)
	}
}

func (a *TimedAnimator) ShowTiebreaker(tb *protocol.TiebreakerStarted) {
	if a.hooks.Tiebreaker != nil {
		a.hooks.Tiebreaker(tb)
	}
}

func (a *TimedAnimator) ShowGameOver(g *protocol.GameOver) {
	if a.hooks.GameOver != nil {
		a.hooks.GameOver(g)
	}
}
