package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound is a client command. Encode wraps the payload in the same
// {type, data} envelope the server sends.
type Outbound interface {
	kind() string
}

type Authenticate struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type Heartbeat struct{}

type ListRooms struct{}

type CreateRoom struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Password string `json:"password,omitempty"`
	EntryFee int    `json:"entry_fee,omitempty"`
}

type JoinRoom struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

type JoinAsSpectator struct {
	RoomID string `json:"room_id"`
}

type RejoinRoom struct {
	RoomID string `json:"room_id"`
}

type Ready struct{}

type Roll struct{}

type EnableAutoPlay struct{}

type LeaveRoom struct{}

// Admin actions. The server re-checks authority; these only reach the wire
// when the local viewer is the host.

type SelectPlayer struct {
	UserID string `json:"user_id"`
}

type KickPlayer struct {
	UserID string `json:"user_id"`
}

type BanPlayer struct {
	UserID string `json:"user_id"`
}

type UnbanPlayer struct {
	UserID string `json:"user_id"`
}

type SelectSpectator struct {
	UserID string `json:"user_id"`
}

type KickSpectator struct {
	UserID string `json:"user_id"`
}

type BecomeSpectator struct{}

type BecomePlayer struct{}

type VoteKickDisconnected struct {
	UserID string `json:"user_id"`
}

type SendChat struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type GetChatHistory struct {
	Channel string `json:"channel"`
}

type MuteUser struct {
	UserID string `json:"user_id"`
}

type UnmuteUser struct {
	UserID string `json:"user_id"`
}

type RequestToPlay struct{}

// AutoRoll is the client-side fallback roll request for an auto-controlled
// player whose server-side auto-roll did not visibly occur.
type AutoRoll struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

func (Authenticate) kind() string         { return "authenticate" }
func (Heartbeat) kind() string            { return "heartbeat" }
func (ListRooms) kind() string            { return "list_rooms" }
func (CreateRoom) kind() string           { return "create_room" }
func (JoinRoom) kind() string             { return "join_room" }
func (JoinAsSpectator) kind() string      { return "join_as_spectator" }
func (RejoinRoom) kind() string           { return "rejoin_room" }
func (Ready) kind() string                { return "ready" }
func (Roll) kind() string                 { return "roll" }
func (EnableAutoPlay) kind() string       { return "enable_auto_play" }
func (LeaveRoom) kind() string            { return "leave_room" }
func (SelectPlayer) kind() string         { return "select_player" }
func (KickPlayer) kind() string           { return "kick_player" }
func (BanPlayer) kind() string            { return "ban_player" }
func (UnbanPlayer) kind() string          { return "unban_player" }
func (SelectSpectator) kind() string      { return "select_spectator" }
func (KickSpectator) kind() string        { return "kick_spectator" }
func (BecomeSpectator) kind() string      { return "become_spectator" }
func (BecomePlayer) kind() string         { return "become_player" }
func (VoteKickDisconnected) kind() string { return "vote_kick_disconnected" }
func (SendChat) kind() string             { return "send_chat" }
func (GetChatHistory) kind() string       { return "get_chat_history" }
func (MuteUser) kind() string             { return "mute_user" }
func (UnmuteUser) kind() string           { return "unmute_user" }
func (RequestToPlay) kind() string        { return "request_to_play" }
func (AutoRoll) kind() string             { return "auto_roll" }

// Encode renders a command as a {type, data} frame.
func Encode(cmd Outbound) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.kind(), err)
	}
	return json.Marshal(envelope{Type: cmd.kind(), Data: data})
}

// Kind exposes the wire discriminator, mostly for logging and tests.
func Kind(cmd Outbound) string { return cmd.kind() }
