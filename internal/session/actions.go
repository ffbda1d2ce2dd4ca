package session

import (
	"github.com/dicearena/client/internal/chat"
	"github.com/dicearena/client/internal/protocol"
)

// User intents. Each runs on the loop goroutine so gating reads a consistent
// model; each returns the client-side rejection without any network call.

// Ready confirms participation and cancels the auto-ready deadline.
func (s *Session) Ready() error {
	return s.do(func() error {
		if err := s.conn.Send(protocol.Ready{}); err != nil {
			return err
		}
		s.timers.NotifyManualReady()
		return nil
	})
}

// Roll plays the local turn and cancels the auto-roll deadline.
func (s *Session) Roll() error {
	return s.do(func() error {
		if err := s.conn.Send(protocol.Roll{}); err != nil {
			return err
		}
		s.timers.NotifyManualRoll()
		return nil
	})
}

// JoinRoom confirms the entry fee with the balance service, then asks to join.
func (s *Session) JoinRoom(roomID, password string) error {
	return s.do(func() error {
		if r, ok := s.rooms[roomID]; ok && r.EntryFee > 0 {
			if err := s.balance.Confirm(r.EntryFee); err != nil {
				return ErrInsufficientBalance
			}
		}
		return s.conn.Send(protocol.JoinRoom{RoomID: roomID, Password: password})
	})
}

func (s *Session) JoinAsSpectator(roomID string) error {
	return s.do(func() error {
		return s.conn.Send(protocol.JoinAsSpectator{RoomID: roomID})
	})
}

func (s *Session) CreateRoom(name string, capacity, entryFee int, password string) error {
	return s.do(func() error {
		if entryFee > 0 {
			if err := s.balance.Confirm(entryFee); err != nil {
				return ErrInsufficientBalance
			}
		}
		return s.conn.Send(protocol.CreateRoom{Name: name, Capacity: capacity, EntryFee: entryFee, Password: password})
	})
}

// LeaveRoom tells the server and resets room-scoped state immediately.
func (s *Session) LeaveRoom() error {
	return s.do(func() error {
		err := s.conn.Send(protocol.LeaveRoom{})
		s.leaveLocally()
		return err
	})
}

func (s *Session) RequestToPlay() error {
	return s.do(func() error { return s.conn.Send(protocol.RequestToPlay{}) })
}

func (s *Session) EnableAutoPlay() error {
	return s.do(func() error { return s.conn.Send(protocol.EnableAutoPlay{}) })
}

func (s *Session) BecomeSpectator() error {
	return s.do(func() error { return s.conn.Send(protocol.BecomeSpectator{}) })
}

func (s *Session) BecomePlayer() error {
	return s.do(func() error { return s.conn.Send(protocol.BecomePlayer{}) })
}

// VoteKick casts the one-shot kick vote against a disconnected player.
func (s *Session) VoteKick(userID string) error {
	return s.do(func() error { return s.votes.Vote(userID) })
}

// SendChat is rejected client-side when the channel is hidden or read-only.
func (s *Session) SendChat(ch chat.Channel, text string) error {
	return s.do(func() error { return s.chat.SendMessage(ch, text) })
}

func (s *Session) ActivateChannel(ch chat.Channel) error {
	return s.do(func() error { return s.chat.Activate(ch) })
}

func (s *Session) RequestChatHistory(ch chat.Channel) error {
	return s.do(func() error { return s.chat.RequestHistory(ch) })
}

func (s *Session) Mute(userID string) error {
	return s.do(func() error { return s.chat.Mute(userID) })
}

func (s *Session) Unmute(userID string) error {
	return s.do(func() error { return s.chat.Unmute(userID) })
}

// Admin actions are gated on the host flag before anything reaches the wire;
// the server re-checks regardless.

func (s *Session) admin(cmd protocol.Outbound) error {
	return s.do(func() error {
		if !s.model.IsAdmin(s.localID) {
			return ErrNotAdmin
		}
		return s.conn.Send(cmd)
	})
}

func (s *Session) SelectPlayer(userID string) error {
	return s.admin(protocol.SelectPlayer{UserID: userID})
}

func (s *Session) KickPlayer(userID string) error {
	return s.admin(protocol.KickPlayer{UserID: userID})
}

func (s *Session) BanPlayer(userID string) error {
	return s.admin(protocol.BanPlayer{UserID: userID})
}

func (s *Session) UnbanPlayer(userID string) error {
	return s.admin(protocol.UnbanPlayer{UserID: userID})
}

func (s *Session) SelectSpectator(userID string) error {
	return s.admin(protocol.SelectSpectator{UserID: userID})
}

func (s *Session) KickSpectator(userID string) error {
	return s.admin(protocol.KickSpectator{UserID: userID})
}
