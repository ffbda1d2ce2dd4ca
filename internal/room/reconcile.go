package room

import (
	"slices"

	"github.com/dicearena/client/internal/protocol"
)

// SnapshotReport tells the session what a snapshot invalidated.
type SnapshotReport struct {
	// FlushQueue is always true: queued round events predate the snapshot and
	// would double-apply score changes already reflected in it.
	FlushQueue bool
	RoomID     string
}

// ApplySnapshot replaces the model wholesale with the authoritative state.
// Snapshot arrival always wins over stale queued deltas.
func (m *Model) ApplySnapshot(st *protocol.RoomState) SnapshotReport {
	m.RoomID = st.RoomID
	m.Name = st.Name
	m.HostID = st.HostID
	m.Capacity = st.Capacity
	m.Status = Status(st.Status)
	m.CurrentTurnID = st.CurrentTurnID
	m.Round = st.Round

	m.Players = fromWire(st.Players)
	m.Lobby = fromWire(st.Lobby)
	m.Spectators = fromWire(st.Spectators)

	m.Banned = map[string]bool{}
	for _, id := range st.Banned {
		m.Banned[id] = true
	}
	m.AutoControlled = map[string]bool{}
	for _, id := range st.AutoControlled {
		m.AutoControlled[id] = true
	}

	if st.ReadyDuration > 0 {
		m.ReadyDurationSec = st.ReadyDuration
	}
	if st.TurnDuration > 0 {
		m.TurnDurationSec = st.TurnDuration
	}

	// A snapshot landing inside the ready window keeps the window open; the
	// selected-but-unpromoted roster still stands in for Players. Any other
	// status closes it.
	if m.Status != StatusWaiting {
		m.readyPhase = false
		m.SelectedIDs = nil
	}

	return SnapshotReport{FlushQueue: true, RoomID: st.RoomID}
}

// Reset clears the model when the viewer leaves or is told not_in_room.
func (m *Model) Reset() {
	*m = *New()
}

func (m *Model) ApplyPlayerJoined(p protocol.PlayerInfo) {
	m.removeEverywhere(p.UserID)
	m.Players = append(m.Players, playerFromWire(p))
}

func (m *Model) ApplyLobbyJoined(p protocol.PlayerInfo) {
	m.removeEverywhere(p.UserID)
	m.Lobby = append(m.Lobby, playerFromWire(p))
}

func (m *Model) ApplyLobbyUpdated(lobby []protocol.PlayerInfo) {
	// The server resends the whole lobby list; other partitions are untouched,
	// so drop any id that moved into the new lobby from elsewhere first.
	for _, p := range lobby {
		m.removeEverywhere(p.UserID)
	}
	m.Lobby = fromWire(lobby)
}

func (m *Model) ApplySpectatorJoined(p protocol.PlayerInfo) {
	m.removeEverywhere(p.UserID)
	m.Spectators = append(m.Spectators, playerFromWire(p))
}

func (m *Model) ApplyPlayerLeft(userID string) {
	m.removeEverywhere(userID)
	delete(m.AutoControlled, userID)
	m.SelectedIDs = removeID(m.SelectedIDs, userID)
}

func (m *Model) ApplySpectatorLeft(userID string) {
	m.removeEverywhere(userID)
}

// ApplyPlayerSelected moves a lobby entrant onto the roster. The server
// enforces capacity; the client mirrors the move.
func (m *Model) ApplyPlayerSelected(userID string) {
	p, ok := m.PlayerByID(userID)
	if !ok {
		return
	}
	if !slices.Contains(m.SelectedIDs, userID) {
		m.SelectedIDs = append(m.SelectedIDs, userID)
	}
	m.removeEverywhere(userID)
	m.Lobby = append(m.Lobby, p)
}

// ApplyRequestToPlayAccepted moves a spectator into the lobby.
func (m *Model) ApplyRequestToPlayAccepted(userID string) {
	p, ok := m.PlayerByID(userID)
	if !ok {
		return
	}
	m.removeEverywhere(userID)
	m.Lobby = append(m.Lobby, p)
}

func (m *Model) ApplyPlayerKicked(userID string) {
	m.ApplyPlayerLeft(userID)
}

func (m *Model) ApplyPlayerBanned(userID string) {
	m.ApplyPlayerLeft(userID)
	m.Banned[userID] = true
}

func (m *Model) ApplyPlayerUnbanned(userID string) {
	delete(m.Banned, userID)
}

// ApplyRemovedFromGame demotes the local viewer to spectator.
func (m *Model) ApplyRemovedFromGame(localID string) {
	p, ok := m.PlayerByID(localID)
	if !ok {
		return
	}
	m.removeEverywhere(localID)
	m.SelectedIDs = removeID(m.SelectedIDs, localID)
	m.Spectators = append(m.Spectators, p)
}

func (m *Model) ApplyAutoControl(userID string, enabled bool) {
	if enabled {
		m.AutoControlled[userID] = true
	} else {
		delete(m.AutoControlled, userID)
	}
}

// ApplyGameStarting opens the ready window for the selected roster.
func (m *Model) ApplyGameStarting(selectedIDs []string, readyDurationSec int) {
	m.readyPhase = true
	m.SelectedIDs = slices.Clone(selectedIDs)
	if readyDurationSec > 0 {
		m.ReadyDurationSec = readyDurationSec
	}
}

// ApplyGameStarted promotes the selected roster to Players and enters play.
func (m *Model) ApplyGameStarted(firstTurnID string) {
	for _, id := range m.SelectedIDs {
		if findPlayer(m.Players, id) >= 0 {
			continue
		}
		p, ok := m.PlayerByID(id)
		if !ok {
			continue
		}
		m.removeEverywhere(id)
		m.Players = append(m.Players, p)
	}
	m.readyPhase = false
	m.SelectedIDs = nil
	m.Status = StatusPlaying
	m.CurrentTurnID = firstTurnID
	m.Round = 1
}

func (m *Model) ApplyRoundComplete(round int) {
	if round > 0 {
		m.Round = round
	}
}

func (m *Model) ApplyTurnChanged(userID string, round int) {
	m.CurrentTurnID = userID
	if round > 0 {
		m.Round = round
	}
}

// ApplyScores installs server-authoritative totals; scores are never computed
// locally.
func (m *Model) ApplyScores(scores map[string]int) {
	for i := range m.Players {
		if v, ok := scores[m.Players[i].UserID]; ok {
			m.Players[i].Score = v
		}
	}
}

func (m *Model) ApplyGameOver(winnerID string, finalScores map[string]int) {
	m.ApplyScores(finalScores)
	m.Status = StatusFinished
	m.CurrentTurnID = ""
}

func (m *Model) removeEverywhere(userID string) {
	m.Players = removePlayer(m.Players, userID)
	m.Lobby = removePlayer(m.Lobby, userID)
	m.Spectators = removePlayer(m.Spectators, userID)
}

func removePlayer(list []Player, userID string) []Player {
	if i := findPlayer(list, userID); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

func removeID(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

func fromWire(infos []protocol.PlayerInfo) []Player {
	out := make([]Player, 0, len(infos))
	for _, p := range infos {
		out = append(out, playerFromWire(p))
	}
	return out
}

func playerFromWire(p protocol.PlayerInfo) Player {
	return Player{UserID: p.UserID, DisplayName: p.DisplayName, Score: p.Score, Ready: p.Ready}
}
