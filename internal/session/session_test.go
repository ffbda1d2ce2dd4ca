package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dicearena/client/internal/chat"
	"github.com/dicearena/client/internal/conn"
	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
	"github.com/dicearena/client/internal/schedule"
)

// fakeConn records outbound traffic; the session never sees a real socket.
type fakeConn struct {
	mu     sync.Mutex
	sent   []protocol.Outbound
	rejoin string
}

func (f *fakeConn) Send(cmd protocol.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeConn) SetRejoinRoom(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejoin = roomID
}

func (f *fakeConn) State() conn.State { return conn.StateConnected }

func (f *fakeConn) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cmd := range f.sent {
		if protocol.Kind(cmd) == kind {
			n++
		}
	}
	return n
}

func (f *fakeConn) rejoinRoom() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejoin
}

// waitCount polls until kind has been sent n times; sends come from timers.
func (f *fakeConn) waitCount(t *testing.T, kind string, n int, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if f.count(kind) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q commands, have %d", n, kind, f.count(kind))
}

func fastTimers() schedule.Config {
	return schedule.Config{
		Step:          2 * time.Millisecond,
		TurnDuration:  40 * time.Millisecond,
		ReadyDuration: 40 * time.Millisecond,
		FallbackDelay: 20 * time.Millisecond,
	}
}

func newSession(t *testing.T, localID string) (*Session, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	s := New(context.Background(), zap.NewNop(), fc, Config{
		LocalID:           localID,
		AnimationDuration: 20 * time.Millisecond,
		ResultPause:       20 * time.Millisecond,
		Timers:            fastTimers(),
	})
	t.Cleanup(s.Close)
	return s, fc
}

// sync waits until every previously sunk message has been dispatched.
func syncLoop(t *testing.T, s *Session) View {
	t.Helper()
	v, err := s.Snapshot()
	require.NoError(t, err)
	return v
}

func playingSnapshot(turnID string) *protocol.RoomState {
	return &protocol.RoomState{
		RoomID: "r1", Name: "High Rollers", HostID: "ana", Capacity: 2,
		Status: "playing", Round: 1, CurrentTurnID: turnID,
		Players: []protocol.PlayerInfo{
			{UserID: "ana", DisplayName: "Ana"},
			{UserID: "bo", DisplayName: "Bo"},
		},
		Spectators: []protocol.PlayerInfo{{UserID: "dee", DisplayName: "Dee"}},
	}
}

func TestSnapshotDiscardsQueuedRolls_NoDoubleCounting(t *testing.T) {
	s, _ := newSession(t, "dee")

	s.Sink(playingSnapshot("ana"))
	// One roll animates (20ms); three more pile up behind it.
	s.Sink(&protocol.DiceRolled{UserID: "ana", Value: 4})
	s.Sink(&protocol.DiceRolled{UserID: "bo", Value: 2})
	s.Sink(&protocol.DiceRolled{UserID: "ana", Value: 6})
	s.Sink(&protocol.DiceRolled{UserID: "bo", Value: 1})

	// A fresh snapshot lands while they are queued: all are discarded and the
	// snapshotted scores stand.
	snap := playingSnapshot("bo")
	snap.Round = 3
	snap.Players[0].Score = 2
	snap.Players[1].Score = 1
	s.Sink(snap)

	v := syncLoop(t, s)
	p := v.Room.Players[0]
	require.Equal(t, 2, p.Score)

	// Give abandoned animations time to fire their stale callbacks.
	time.Sleep(60 * time.Millisecond)
	v = syncLoop(t, s)
	require.Equal(t, 2, v.Room.Players[0].Score, "no double counting after stale callbacks")
	require.Equal(t, 3, v.Room.Round)
}

func TestTurnTimer_AutoRollsExactlyOnce(t *testing.T) {
	s, fc := newSession(t, "ana")

	s.Sink(playingSnapshot("ana"))
	syncLoop(t, s)

	fc.waitCount(t, "roll", 1, time.Second)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, fc.count("roll"), "exactly one auto-roll per turn")
}

func TestTurnTimer_ManualRollCancels(t *testing.T) {
	s, fc := newSession(t, "ana")

	s.Sink(playingSnapshot("ana"))
	syncLoop(t, s)
	require.NoError(t, s.Roll())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, fc.count("roll"), "only the manual roll goes out")
}

func TestReadyPhase_AutoReadyForSilentPlayer(t *testing.T) {
	// Viewer bo never clicks ready; the deadline submits it once.
	s, fc := newSession(t, "bo")

	s.Sink(&protocol.RoomState{
		RoomID: "r1", HostID: "ana", Capacity: 2, Status: "waiting",
		Lobby: []protocol.PlayerInfo{
			{UserID: "ana", DisplayName: "Ana"},
			{UserID: "bo", DisplayName: "Bo"},
		},
	})
	s.Sink(&protocol.GameStarting{SelectedIDs: []string{"ana", "bo"}})
	syncLoop(t, s)

	fc.waitCount(t, "ready", 1, time.Second)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, fc.count("ready"))
}

func TestReadyPhase_ManualReadyCancelsDeadline(t *testing.T) {
	s, fc := newSession(t, "ana")

	s.Sink(&protocol.RoomState{
		RoomID: "r1", HostID: "ana", Capacity: 2, Status: "waiting",
		Lobby: []protocol.PlayerInfo{
			{UserID: "ana", DisplayName: "Ana"},
			{UserID: "bo", DisplayName: "Bo"},
		},
	})
	s.Sink(&protocol.GameStarting{SelectedIDs: []string{"ana", "bo"}})
	syncLoop(t, s)

	require.NoError(t, s.Ready())
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, fc.count("ready"), "no auto-ready after the manual one")
}

func TestRemoteFallback_FiresAfterQueueDrains(t *testing.T) {
	s, fc := newSession(t, "ana")

	snap := playingSnapshot("bo")
	snap.AutoControlled = []string{"bo"}
	s.Sink(snap)
	s.Sink(&protocol.DiceRolled{UserID: "bo", Value: 3})
	syncLoop(t, s)

	// Animation (20ms) drains the queue, then the fallback delay (20ms) runs.
	fc.waitCount(t, "auto_roll", 1, time.Second)

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, fc.count("auto_roll"), "one outstanding fallback per player")
}

func TestRemoteFallback_ArmedByRejoinSnapshot(t *testing.T) {
	s, fc := newSession(t, "ana")

	s.Sink(playingSnapshot("ana"))
	syncLoop(t, s)

	// A reconnect snapshot lands mid-turn of an auto-controlled player with
	// nothing queued; the fallback must arm off the snapshot itself.
	snap := playingSnapshot("bo")
	snap.Round = 2
	snap.AutoControlled = []string{"bo"}
	s.Sink(snap)
	syncLoop(t, s)

	fc.waitCount(t, "auto_roll", 1, time.Second)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, fc.count("auto_roll"))
}

func TestKickVote_FlowThroughSession(t *testing.T) {
	s, fc := newSession(t, "ana")

	s.Sink(playingSnapshot("ana"))
	s.Sink(&protocol.PlayerDisconnected{UserID: "bo", DeadlineSec: 0})
	syncLoop(t, s)

	require.NoError(t, s.VoteKick("bo"))
	require.Equal(t, 1, fc.count("vote_kick_disconnected"))
	require.Error(t, s.VoteKick("bo"), "second vote from the same voter rejected")
	require.Equal(t, 1, fc.count("vote_kick_disconnected"))

	// Rejoin clears the pending state; twice is the same as once.
	s.Sink(&protocol.PlayerRejoined{UserID: "bo"})
	s.Sink(&protocol.PlayerRejoined{UserID: "bo"})
	syncLoop(t, s)
	require.Error(t, s.VoteKick("bo"))
}

func TestAdminActions_GatedOnHost(t *testing.T) {
	s, fc := newSession(t, "bo") // bo is not the host
	s.Sink(playingSnapshot("ana"))
	syncLoop(t, s)

	require.ErrorIs(t, s.KickPlayer("dee"), ErrNotAdmin)
	require.Zero(t, fc.count("kick_player"))

	host, hostConn := newSession(t, "ana")
	host.Sink(playingSnapshot("ana"))
	syncLoop(t, host)
	require.NoError(t, host.BanPlayer("bo"))
	require.Equal(t, 1, hostConn.count("ban_player"))
}

func TestChat_SpectatorGatingThroughSession(t *testing.T) {
	s, fc := newSession(t, "dee")
	s.Sink(playingSnapshot("ana"))
	syncLoop(t, s)

	require.ErrorIs(t, s.SendChat(chat.ChannelPlayers, "hi"), chat.ErrChannelReadOnly)
	require.Zero(t, fc.count("send_chat"))
	require.NoError(t, s.SendChat(chat.ChannelSpectators, "hi"))
	require.Equal(t, 1, fc.count("send_chat"))

	v := syncLoop(t, s)
	require.Equal(t, chat.ChannelSpectators, v.ActiveChannel)
}

func TestLeaveRoom_ResetsRoomScopedState(t *testing.T) {
	s, fc := newSession(t, "ana")
	s.Sink(playingSnapshot("ana"))
	v := syncLoop(t, s)
	require.Equal(t, "r1", v.Room.RoomID)
	require.Equal(t, "r1", fc.rejoinRoom())

	require.NoError(t, s.LeaveRoom())
	v = syncLoop(t, s)
	require.Empty(t, v.Room.RoomID)
	require.Empty(t, fc.rejoinRoom())
	require.Equal(t, room.StatusWaiting, v.Room.Status)
}

func TestJoinRoom_BalanceGate(t *testing.T) {
	fc := &fakeConn{}
	denied := balanceFunc(func(fee int) error { return ErrInsufficientBalance })
	s := New(context.Background(), zap.NewNop(), fc, Config{
		LocalID: "ana",
		Timers:  fastTimers(),
		Balance: denied,
	})
	t.Cleanup(s.Close)

	s.Sink(&protocol.RoomList{Rooms: []protocol.RoomSummary{
		{RoomID: "r9", Name: "Stakes", Capacity: 2, EntryFee: 100},
		{RoomID: "r0", Name: "Free", Capacity: 2},
	}})
	syncLoop(t, s)

	require.ErrorIs(t, s.JoinRoom("r9", ""), ErrInsufficientBalance)
	require.Zero(t, fc.count("join_room"), "rejected before any network call")

	require.NoError(t, s.JoinRoom("r0", ""))
	require.Equal(t, 1, fc.count("join_room"))
}

type balanceFunc func(fee int) error

func (f balanceFunc) Confirm(fee int) error { return f(fee) }
