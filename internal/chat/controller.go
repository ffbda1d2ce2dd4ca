package chat

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/dicearena/client/internal/protocol"
	"github.com/dicearena/client/internal/room"
)

type Channel string

const (
	ChannelLobby      Channel = "lobby"
	ChannelPlayers    Channel = "players"
	ChannelSpectators Channel = "spectators"
)

// maxMessages bounds each channel to the most recent messages.
const maxMessages = 100

var (
	ErrChannelHidden   = errors.New("channel not visible to viewer")
	ErrChannelReadOnly = errors.New("channel not writable by viewer")
)

// Sender transmits commands; the connection supervisor implements it.
type Sender interface {
	Send(cmd protocol.Outbound) error
}

type channelState struct {
	messages         []protocol.ChatMessage
	unread           int
	historyRequested bool
}

// Controller gates the three fixed chat channels on (room phase, viewer role)
// and tracks per-channel unread counts and history state.
// Not goroutine-safe; session-loop use only.
type Controller struct {
	log     *zap.Logger
	model   *room.Model
	localID string
	send    Sender

	channels map[Channel]*channelState
	active   Channel
	muted    map[string]bool
}

func New(log *zap.Logger, model *room.Model, localID string, send Sender) *Controller {
	return &Controller{
		log:     log.Named("chat"),
		model:   model,
		localID: localID,
		send:    send,
		channels: map[Channel]*channelState{
			ChannelLobby:      {},
			ChannelPlayers:    {},
			ChannelSpectators: {},
		},
		active: ChannelLobby,
		muted:  map[string]bool{},
	}
}

// spectating reports whether the viewer sits on the spectator side of the
// gating rules. Lobby entrants count as player-side: during the ready phase
// they are the selected roster.
func (c *Controller) spectating() bool {
	return c.model.Role(c.localID) == room.RoleSpectator
}

// CanRead implements the visibility matrix. During selection only the lobby
// channel exists; afterwards the lobby channel is hidden entirely.
func (c *Controller) CanRead(ch Channel) bool {
	if c.model.EffectivePhase() == room.PhaseSelection {
		return ch == ChannelLobby
	}
	switch ch {
	case ChannelPlayers:
		return true // players read/write, spectators read-only
	case ChannelSpectators:
		return c.spectating()
	default:
		return false
	}
}

// CanWrite narrows CanRead: spectators never write to the players channel.
func (c *Controller) CanWrite(ch Channel) bool {
	if !c.CanRead(ch) {
		return false
	}
	if ch == ChannelPlayers && c.spectating() {
		return false
	}
	return true
}

// Visible lists readable channels in display order.
func (c *Controller) Visible() []Channel {
	var out []Channel
	for _, ch := range []Channel{ChannelLobby, ChannelPlayers, ChannelSpectators} {
		if c.CanRead(ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Controller) Active() Channel { return c.active }

// Activate switches the viewer's current channel and clears its unread count.
func (c *Controller) Activate(ch Channel) error {
	if !c.CanRead(ch) {
		return ErrChannelHidden
	}
	c.active = ch
	c.channels[ch].unread = 0
	return nil
}

// Refresh re-checks the active channel after a phase or role transition and
// deterministically switches when it went invalid: spectators prefer their
// own channel, everyone else lands on players (or lobby during selection).
func (c *Controller) Refresh() {
	if c.CanRead(c.active) {
		return
	}
	next := ChannelPlayers
	switch {
	case c.model.EffectivePhase() == room.PhaseSelection:
		next = ChannelLobby
	case c.spectating():
		next = ChannelSpectators
	}
	c.log.Debug("active channel invalidated", zap.String("from", string(c.active)), zap.String("to", string(next)))
	c.active = next
	c.channels[next].unread = 0
}

// OnMessage appends a live message, counting it unread unless the channel is
// the active one.
func (c *Controller) OnMessage(msg *protocol.ChatMessage) {
	if c.muted[msg.UserID] {
		return
	}
	ch := Channel(msg.Channel)
	st, ok := c.channels[ch]
	if !ok {
		c.log.Warn("message for unknown channel dropped", zap.String("channel", msg.Channel))
		return
	}
	st.messages = appendBounded(st.messages, *msg)
	if ch != c.active {
		st.unread++
	}
}

// RequestHistory sends get_chat_history once per channel; repeat calls no-op.
func (c *Controller) RequestHistory(ch Channel) error {
	st, ok := c.channels[ch]
	if !ok || st.historyRequested {
		return nil
	}
	if err := c.send.Send(protocol.GetChatHistory{Channel: string(ch)}); err != nil {
		return err
	}
	st.historyRequested = true
	return nil
}

// OnHistory merges fetched history with messages already received live:
// de-duplicated by message id, ordered by timestamp, truncated to the most
// recent maxMessages.
func (c *Controller) OnHistory(h *protocol.ChatHistory) {
	st, ok := c.channels[Channel(h.Channel)]
	if !ok {
		return
	}
	seen := map[string]bool{}
	merged := make([]protocol.ChatMessage, 0, len(st.messages)+len(h.Messages))
	for _, m := range append(h.Messages, st.messages...) {
		if m.MessageID != "" && seen[m.MessageID] {
			continue
		}
		seen[m.MessageID] = true
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SentAt < merged[j].SentAt
	})
	if len(merged) > maxMessages {
		merged = merged[len(merged)-maxMessages:]
	}
	st.messages = merged
}

// SendMessage rejects disallowed writes client-side before any network call.
func (c *Controller) SendMessage(ch Channel, text string) error {
	if !c.CanRead(ch) {
		return ErrChannelHidden
	}
	if !c.CanWrite(ch) {
		return ErrChannelReadOnly
	}
	return c.send.Send(protocol.SendChat{Channel: string(ch), Text: text})
}

func (c *Controller) Messages(ch Channel) []protocol.ChatMessage {
	if st, ok := c.channels[ch]; ok {
		return st.messages
	}
	return nil
}

// Mute hides a user's messages locally and tells the server.
func (c *Controller) Mute(userID string) error {
	if c.muted[userID] {
		return nil
	}
	if err := c.send.Send(protocol.MuteUser{UserID: userID}); err != nil {
		return err
	}
	c.muted[userID] = true
	return nil
}

func (c *Controller) Unmute(userID string) error {
	if !c.muted[userID] {
		return nil
	}
	if err := c.send.Send(protocol.UnmuteUser{UserID: userID}); err != nil {
		return err
	}
	delete(c.muted, userID)
	return nil
}

func (c *Controller) Unread(ch Channel) int {
	if st, ok := c.channels[ch]; ok {
		return st.unread
	}
	return 0
}

func appendBounded(msgs []protocol.ChatMessage, m protocol.ChatMessage) []protocol.ChatMessage {
	msgs = append(msgs, m)
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	return msgs
}
