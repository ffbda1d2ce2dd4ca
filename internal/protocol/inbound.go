package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

// Inbound is the decoded form of a server frame. Decode turns the {type, data}
// envelope into exactly one of the structs below; components switch on the
// concrete type instead of re-inspecting the discriminator string.
type Inbound interface{ isInbound() }

// envelope is the wire shape of every server frame.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Connection lifecycle.

type Welcome struct {
	ServerVersion string `json:"server_version,omitempty"`
}

type Authenticated struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type HeartbeatAck struct{}

type SystemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Room discovery.

type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

type RoomSummary struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	PlayerCount int    `json:"player_count"`
	Status      string `json:"status"`
	HasPassword bool   `json:"has_password,omitempty"`
	EntryFee    int    `json:"entry_fee,omitempty"`
}

type RoomCreated struct {
	Room RoomSummary `json:"room"`
}

type RoomRemoved struct {
	RoomID string `json:"room_id"`
}

// Room membership.

// RoomState is the full authoritative snapshot. It supersedes every queued
// round event (see the sequencer flush rule in the reconciler).
type RoomState struct {
	RoomID         string       `json:"room_id"`
	Name           string       `json:"name"`
	HostID         string       `json:"host_id"`
	Capacity       int          `json:"capacity"`
	Status         string       `json:"status"` // waiting | playing | finished
	CurrentTurnID  string       `json:"current_turn_id,omitempty"`
	Round          int          `json:"round"`
	Players        []PlayerInfo `json:"players"`
	Lobby          []PlayerInfo `json:"lobby"`
	Spectators     []PlayerInfo `json:"spectators"`
	Banned         []string     `json:"banned,omitempty"`
	AutoControlled []string     `json:"auto_controlled,omitempty"`
	ReadyDuration  int          `json:"ready_duration_sec,omitempty"`
	TurnDuration   int          `json:"turn_duration_sec,omitempty"`
}

type PlayerInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score,omitempty"`
	Ready       bool   `json:"ready,omitempty"`
}

type PlayerJoined struct {
	Player PlayerInfo `json:"player"`
}

type PlayerLeft struct {
	UserID string `json:"user_id"`
}

type PlayerDisconnected struct {
	UserID      string `json:"user_id"`
	DeadlineSec int    `json:"deadline_sec"`
}

type PlayerRejoined struct {
	UserID string `json:"user_id"`
}

type AutoControlEnabled struct {
	UserID string `json:"user_id"`
}

type AutoControlDisabled struct {
	UserID string `json:"user_id"`
}

type LobbyJoined struct {
	Player PlayerInfo `json:"player"`
}

type LobbyUpdated struct {
	Lobby []PlayerInfo `json:"lobby"`
}

type PlayerSelected struct {
	UserID string `json:"user_id"`
}

type PlayerKicked struct {
	UserID string `json:"user_id"`
}

type PlayerBanned struct {
	UserID string `json:"user_id"`
}

type PlayerUnbanned struct {
	UserID string `json:"user_id"`
}

type SpectatorJoined struct {
	Spectator PlayerInfo `json:"spectator"`
}

type SpectatorLeft struct {
	UserID string `json:"user_id"`
}

type RequestToPlayAccepted struct {
	UserID string `json:"user_id"`
}

type RemovedFromGame struct {
	Reason string `json:"reason,omitempty"`
}

// GameStarting opens the ready phase. ReadyDuration is the server-configured
// auto-ready deadline in seconds; zero means the client falls back to its
// default.
type GameStarting struct {
	SelectedIDs   []string `json:"selected_ids"`
	ReadyDuration int      `json:"ready_duration_sec,omitempty"`
}

type GameStarted struct {
	FirstTurnID string `json:"first_turn_id"`
}

type NotInRoom struct{}

// Round play.

type DiceRolled struct {
	UserID string `json:"user_id"`
	Value  int    `json:"value"` // 1–6
}

type RoundResult struct {
	Rolls         map[string]int `json:"rolls"`
	WinnerID      string         `json:"winner_id,omitempty"` // empty on a tie
	TiebreakerIDs []string       `json:"tiebreaker_ids,omitempty"`
	Scores        map[string]int `json:"scores"`
}

type TiebreakerStarted struct {
	ParticipantIDs []string `json:"participant_ids"`
	FirstRollerID  string   `json:"first_roller_id"`
}

type TurnChanged struct {
	UserID string `json:"user_id"`
	Round  int    `json:"round"`
}

type RoundComplete struct {
	Round int `json:"round"`
}

type GameOver struct {
	WinnerID    string         `json:"winner_id"`
	FinalScores map[string]int `json:"final_scores"`
}

// Chat.

type ChatMessage struct {
	Channel   string `json:"channel"` // lobby | players | spectators
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	SentAt    int64  `json:"sent_at"` // unix millis
}

type ChatHistory struct {
	Channel  string        `json:"channel"`
	Messages []ChatMessage `json:"messages"`
}

func (Welcome) isInbound()               {}
func (Authenticated) isInbound()         {}
func (HeartbeatAck) isInbound()          {}
func (SystemError) isInbound()           {}
func (RoomList) isInbound()              {}
func (RoomCreated) isInbound()           {}
func (RoomRemoved) isInbound()           {}
func (RoomState) isInbound()             {}
func (PlayerJoined) isInbound()          {}
func (PlayerLeft) isInbound()            {}
func (PlayerDisconnected) isInbound()    {}
func (PlayerRejoined) isInbound()        {}
func (AutoControlEnabled) isInbound()    {}
func (AutoControlDisabled) isInbound()   {}
func (LobbyJoined) isInbound()           {}
func (LobbyUpdated) isInbound()          {}
func (PlayerSelected) isInbound()        {}
func (PlayerKicked) isInbound()          {}
func (PlayerBanned) isInbound()          {}
func (PlayerUnbanned) isInbound()        {}
func (SpectatorJoined) isInbound()       {}
func (SpectatorLeft) isInbound()         {}
func (RequestToPlayAccepted) isInbound() {}
func (RemovedFromGame) isInbound()       {}
func (GameStarting) isInbound()          {}
func (GameStarted) isInbound()           {}
func (NotInRoom) isInbound()             {}
func (DiceRolled) isInbound()            {}
func (RoundResult) isInbound()           {}
func (TiebreakerStarted) isInbound()     {}
func (TurnChanged) isInbound()           {}
func (RoundComplete) isInbound()         {}
func (GameOver) isInbound()              {}
func (ChatMessage) isInbound()           {}
func (ChatHistory) isInbound()           {}

// Decode parses one server frame. An unrecognized discriminator returns
// ErrUnknownType so the caller can log and drop the single frame.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	unwrap := func(v Inbound) (Inbound, error) {
		if len(env.Data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return v, nil
	}

	switch env.Type {
	case "welcome":
		return unwrap(&Welcome{})
	case "authenticated":
		return unwrap(&Authenticated{})
	case "heartbeat_ack":
		return unwrap(&HeartbeatAck{})
	case "system_error":
		return unwrap(&SystemError{})
	case "room_list":
		return unwrap(&RoomList{})
	case "room_created":
		return unwrap(&RoomCreated{})
	case "room_removed":
		return unwrap(&RoomRemoved{})
	case "room_state":
		return unwrap(&RoomState{})
	case "player_joined":
		return unwrap(&PlayerJoined{})
	case "player_left":
		return unwrap(&PlayerLeft{})
	case "player_disconnected":
		return unwrap(&PlayerDisconnected{})
	case "player_rejoined":
		return unwrap(&PlayerRejoined{})
	case "auto_control_enabled":
		return unwrap(&AutoControlEnabled{})
	case "auto_control_disabled":
		return unwrap(&AutoControlDisabled{})
	case "lobby_joined":
		return unwrap(&LobbyJoined{})
	case "lobby_updated":
		return unwrap(&LobbyUpdated{})
	case "player_selected":
		return unwrap(&PlayerSelected{})
	case "player_kicked":
		return unwrap(&PlayerKicked{})
	case "player_banned":
		return unwrap(&PlayerBanned{})
	case "player_unbanned":
		return unwrap(&PlayerUnbanned{})
	case "spectator_joined":
		return unwrap(&SpectatorJoined{})
	case "spectator_left":
		return unwrap(&SpectatorLeft{})
	case "request_to_play_accepted":
		return unwrap(&RequestToPlayAccepted{})
	case "removed_from_game":
		return unwrap(&RemovedFromGame{})
	case "game_starting":
		return unwrap(&GameStarting{})
	case "game_started":
		return unwrap(&GameStarted{})
	case "not_in_room":
		return unwrap(&NotInRoom{})
	case "dice_rolled":
		return unwrap(&DiceRolled{})
	case "round_result":
		return unwrap(&RoundResult{})
	case "tiebreaker_started":
		return unwrap(&TiebreakerStarted{})
	case "turn_changed":
		return unwrap(&TurnChanged{})
	case "round_complete":
		return unwrap(&RoundComplete{})
	case "game_over":
		return unwrap(&GameOver{})
	case "chat_message":
		return unwrap(&ChatMessage{})
	case "chat_history":
		return unwrap(&ChatHistory{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
