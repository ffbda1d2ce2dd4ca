package room

import (
	"maps"
	"slices"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Phase is the client-side view of where the room is, which gates chat
// channels and deadline timers. Ready is the window between game_starting
// and game_started where the selected roster must confirm.
type Phase string

const (
	PhaseSelection Phase = "selection"
	PhaseReady     Phase = "ready"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

type Role string

const (
	RolePlayer    Role = "player"
	RoleLobby     Role = "lobby"
	RoleSpectator Role = "spectator"
	RoleNone      Role = "none"
)

type Player struct {
	UserID      string
	DisplayName string
	Score       int
	Ready       bool
}

// RoundRecord is one decisive round in the displayed history. Ties are never
// recorded; they route to a tiebreaker instead.
type RoundRecord struct {
	Round    int
	WinnerID string
	Rolls    map[string]int
}

// Model is the single shared room state. Only the reconciler methods in
// reconcile.go mutate it; every other component reads.
type Model struct {
	RoomID        string
	Name          string
	HostID        string
	Capacity      int
	Status        Status
	CurrentTurnID string
	Round         int

	Players    []Player
	Lobby      []Player
	Spectators []Player

	Banned         map[string]bool
	AutoControlled map[string]bool

	// SelectedIDs and readyPhase track the game_starting window where the
	// roster is chosen but not yet promoted to Players.
	SelectedIDs []string
	readyPhase  bool

	ReadyDurationSec int
	TurnDurationSec  int

	History []RoundRecord
}

func New() *Model {
	return &Model{
		Status:         StatusWaiting,
		Banned:         map[string]bool{},
		AutoControlled: map[string]bool{},
	}
}

func (m *Model) EffectivePhase() Phase {
	switch m.Status {
	case StatusPlaying:
		return PhasePlaying
	case StatusFinished:
		return PhaseFinished
	}
	if m.readyPhase {
		return PhaseReady
	}
	return PhaseSelection
}

// EffectivePlayers is the roster the UI and timers act on. During the ready
// phase the authoritative Players list may still be empty, so the selected
// lobby entrants stand in for it.
func (m *Model) EffectivePlayers() []Player {
	if len(m.Players) > 0 || !m.readyPhase {
		return m.Players
	}
	var sel []Player
	for _, p := range m.Lobby {
		if slices.Contains(m.SelectedIDs, p.UserID) {
			sel = append(sel, p)
		}
	}
	return sel
}

// Role computes the local viewer's role from the partition. Every id is in at
// most one of the three lists; absence means the viewer is not in the room.
func (m *Model) Role(userID string) Role {
	switch {
	case findPlayer(m.Players, userID) >= 0:
		return RolePlayer
	case findPlayer(m.Lobby, userID) >= 0:
		return RoleLobby
	case findPlayer(m.Spectators, userID) >= 0:
		return RoleSpectator
	default:
		return RoleNone
	}
}

func (m *Model) IsAdmin(userID string) bool {
	return userID != "" && m.HostID == userID
}

func (m *Model) IsAutoControlled(userID string) bool {
	return m.AutoControlled[userID]
}

func (m *Model) IsSelected(userID string) bool {
	return slices.Contains(m.SelectedIDs, userID)
}

// PlayerByID searches all three lists.
func (m *Model) PlayerByID(userID string) (Player, bool) {
	for _, list := range [][]Player{m.Players, m.Lobby, m.Spectators} {
		if i := findPlayer(list, userID); i >= 0 {
			return list[i], true
		}
	}
	return Player{}, false
}

func (m *Model) AppendHistory(rec RoundRecord) {
	m.History = append(m.History, rec)
}

// Clone deep-copies the model for readers outside the session loop.
func (m *Model) Clone() *Model {
	c := *m
	c.Players = slices.Clone(m.Players)
	c.Lobby = slices.Clone(m.Lobby)
	c.Spectators = slices.Clone(m.Spectators)
	c.Banned = maps.Clone(m.Banned)
	c.AutoControlled = maps.Clone(m.AutoControlled)
	c.SelectedIDs = slices.Clone(m.SelectedIDs)
	c.History = slices.Clone(m.History)
	return &c
}

// PartitionOK reports whether every known id sits in exactly one list.
func (m *Model) PartitionOK() bool {
	seen := map[string]int{}
	for _, list := range [][]Player{m.Players, m.Lobby, m.Spectators} {
		for _, p := range list {
			seen[p.UserID]++
		}
	}
	for _, n := range seen {
		if n != 1 {
			return false
		}
	}
	return true
}

func findPlayer(list []Player, userID string) int {
	return slices.IndexFunc(list, func(p Player) bool { return p.UserID == userID })
}
