package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dicearena/client/internal/clock"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
)

// manualAnimator records calls and lets the test fire completion callbacks.
type manualAnimator struct {
	rolls   []string // playerIDs in animation start order
	pending []func()
	results int
	overs   int
	ties    int
}

func (a *manualAnimator) AnimateRoll(playerID string, value int, done func()) {
	a.rolls = append(a.rolls, playerID)
	a.pending = append(a.pending, done)
}

func (a *manualAnimator) ShowRoundResult(*protocol.RoundResult) { a.results++ }

func (a *manualAnimator) ShowTiebreaker(*protocol.TiebreakerStarted) { a.ties++ }

func (a *manualAnimator) ShowGameOver(*protocol.GameOver) { a.overs++ }

func (a *manualAnimator) finishNext(t *testing.T) {
	t.Helper()
	if len(a.pending) == 0 {
		t.Fatalf("no animation in flight")
	}
	done := a.pending[0]
	a.pending = a.pending[1:]
	done()
}

func playingModel() *room.Model {
	m := room.New()
	m.ApplySnapshot(&protocol.RoomState{
		RoomID: "r1", HostID: "ana", Capacity: 2, Status: "playing", Round: 1,
		Players: []protocol.PlayerInfo{
			{UserID: "ana", DisplayName: "Ana"},
			{UserID: "bo", DisplayName: "Bo"},
		},
		CurrentTurnID: "ana",
	})
	return m
}

func newSequencer(m *room.Model) (*Sequencer, *manualAnimator, *clock.Fake) {
	anim := &manualAnimator{}
	fake := clock.NewFake()
	s := New(zap.NewNop(), m, anim, fake, time.Second)
	s.SetViewReady(true)
	return s, anim, fake
}

func TestAtMostOneAnimationInFlight(t *testing.T) {
	s, anim, _ := newSequencer(playingModel())

	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 4})
	s.Enqueue(&protocol.DiceRolled{UserID: "bo", Value: 2})
	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 6})

	// Only the first starts; the next begins strictly after completion.
	require.Equal(t, []string{"ana"}, anim.rolls)
	require.Equal(t, 2, s.Pending())

	anim.finishNext(t)
	require.Equal(t, []string{"ana", "bo"}, anim.rolls)

	anim.finishNext(t)
	require.Equal(t, []string{"ana", "bo", "ana"}, anim.rolls)

	anim.finishNext(t)
	require.True(t, s.Idle())
}

func TestDecisiveResult_HistoryAndPause(t *testing.T) {
	m := playingModel()
	s, anim, fake := newSequencer(m)

	s.Enqueue(&protocol.RoundResult{
		Rolls:    map[string]int{"ana": 6, "bo": 2},
		WinnerID: "ana",
		Scores:   map[string]int{"ana": 1, "bo": 0},
	})
	s.Enqueue(&protocol.DiceRolled{UserID: "bo", Value: 3})

	require.Len(t, m.History, 1)
	require.Equal(t, "ana", m.History[0].WinnerID)
	p, _ := m.PlayerByID("ana")
	require.Equal(t, 1, p.Score)

	// The next roll waits out the post-result pause.
	require.Empty(t, anim.rolls)
	fake.Advance(time.Second)
	require.Equal(t, []string{"bo"}, anim.rolls)
}

func TestTie_NoHistoryNoPause(t *testing.T) {
	m := playingModel()
	s, anim, _ := newSequencer(m)

	s.Enqueue(&protocol.RoundResult{
		Rolls:         map[string]int{"ana": 3, "bo": 3},
		TiebreakerIDs: []string{"ana", "bo"},
		Scores:        map[string]int{"ana": 0, "bo": 0},
	})
	s.Enqueue(&protocol.TiebreakerStarted{ParticipantIDs: []string{"ana", "bo"}, FirstRollerID: "ana"})
	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 5})

	require.Empty(t, m.History)
	require.Equal(t, 1, anim.results)
	require.Equal(t, 1, anim.ties)
	// No pause after a tie: the roll animates straight away.
	require.Equal(t, []string{"ana"}, anim.rolls)
}

func TestGameOver_NeverDelayedEndsSequence(t *testing.T) {
	m := playingModel()
	s, anim, _ := newSequencer(m)

	s.Enqueue(&protocol.RoundResult{
		Rolls:    map[string]int{"ana": 6, "bo": 2},
		WinnerID: "ana",
		Scores:   map[string]int{"ana": 3, "bo": 1},
	})
	s.Enqueue(&protocol.DiceRolled{UserID: "bo", Value: 1})
	require.Empty(t, anim.rolls) // held behind the post-result pause

	// The game end jumps the pause and clears the remainder of the queue,
	// without any clock movement.
	s.Enqueue(&protocol.GameOver{WinnerID: "ana", FinalScores: map[string]int{"ana": 3, "bo": 1}})
	require.Equal(t, 1, anim.overs)
	require.Empty(t, anim.rolls)
	require.Equal(t, room.StatusFinished, m.Status)
	require.True(t, s.Idle())

	// The cancelled pause is inert.
	fakeAdvanceResultPause(s)
	require.True(t, s.Idle())
	require.Empty(t, anim.rolls)
}

func TestGameOver_QueuedBehindResultSkipsPause(t *testing.T) {
	m := playingModel()
	anim := &manualAnimator{}
	s := New(zap.NewNop(), m, anim, clock.NewFake(), time.Second)

	// Both buffered while the view is materializing, replayed back to back.
	s.Enqueue(&protocol.RoundResult{
		Rolls:    map[string]int{"ana": 6, "bo": 2},
		WinnerID: "ana",
		Scores:   map[string]int{"ana": 3, "bo": 1},
	})
	s.Enqueue(&protocol.GameOver{WinnerID: "ana", FinalScores: map[string]int{"ana": 3, "bo": 1}})
	s.SetViewReady(true)

	// No clock advance: the pause is skipped when the game end is next.
	require.Equal(t, 1, anim.results)
	require.Equal(t, 1, anim.overs)
	require.Equal(t, room.StatusFinished, m.Status)
	require.True(t, s.Idle())
}

// fakeAdvanceResultPause pushes the fake scheduler the sequencer was built
// with past the result pause.
func fakeAdvanceResultPause(s *Sequencer) {
	s.sched.(*clock.Fake).Advance(time.Second)
}

func TestSnapshotFlush_DiscardsQueuedRolls(t *testing.T) {
	m := playingModel()
	s, anim, _ := newSequencer(m)

	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 4})
	s.Enqueue(&protocol.DiceRolled{UserID: "bo", Value: 2})
	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 6})
	require.Equal(t, 2, s.Pending())

	// Snapshot wins: queued deltas are stale.
	rep := m.ApplySnapshot(&protocol.RoomState{
		RoomID: "r1", HostID: "ana", Capacity: 2, Status: "playing", Round: 2,
		Players: []protocol.PlayerInfo{
			{UserID: "ana", DisplayName: "Ana", Score: 2},
			{UserID: "bo", DisplayName: "Bo", Score: 1},
		},
	})
	require.True(t, rep.FlushQueue)
	s.Flush()

	require.True(t, s.Idle())
	// A late completion callback from the abandoned animation is inert.
	anim.finishNext(t)
	require.True(t, s.Idle())
	require.Equal(t, []string{"ana"}, anim.rolls)

	// Snapshotted scores stand with no double counting.
	p, _ := m.PlayerByID("ana")
	require.Equal(t, 2, p.Score)
}

func TestViewNotReady_BuffersAndReplays(t *testing.T) {
	m := playingModel()
	anim := &manualAnimator{}
	s := New(zap.NewNop(), m, anim, clock.NewFake(), time.Second)

	// Spectator attached mid-round: no dice view yet.
	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 4})
	s.Enqueue(&protocol.DiceRolled{UserID: "bo", Value: 2})
	require.Empty(t, anim.rolls)
	require.Equal(t, 2, s.Pending())

	s.SetViewReady(true)
	require.Equal(t, []string{"ana"}, anim.rolls)
	anim.finishNext(t)
	require.Equal(t, []string{"ana", "bo"}, anim.rolls)
}

func TestDrainHookFiresWhenQueueEmpties(t *testing.T) {
	s, anim, _ := newSequencer(playingModel())
	drained := 0
	s.OnDrain(func() { drained++ })

	s.Enqueue(&protocol.DiceRolled{UserID: "ana", Value: 4})
	require.Zero(t, drained)
	anim.finishNext(t)
	require.Equal(t, 1, drained)
}
