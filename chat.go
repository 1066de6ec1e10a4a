package main

import (
	"strings"
	"unicode/utf8"
)

const maxChatLength = 500

// sendChat posts a player's message to a channel they may currently write to.
func sendChat(gameID, userID, content string, channel Channel) (ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxChatLength {
		return ChatMessage{}, ErrEmptyMessage
	}
	if channel == "" {
		channel = ChannelGlobal
	}

	var msg ChatMessage
	err := runMutation("sendChat", func(m *mutation) error {
		game, err := getGame(m.tx, gameID)
		if err != nil {
			return err
		}
		sender, err := getPlayerByUser(m.tx, gameID, userID)
		if err != nil {
			return err
		}
		if err := checkCanWrite(game, sender, channel); err != nil {
			return err
		}
		msg = ChatMessage{
			ID:         newID(),
			GameID:     gameID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Content:    content,
			Channel:    channel,
			Timestamp:  nowMillis(),
		}
		if err := insertChatMessage(m.tx, msg); err != nil {
			return err
		}
		m.broadcast(gameID)
		return nil
	})
	return msg, err
}

// checkCanWrite applies the channel rules: outside an active game anyone may
// talk globally; during one, the living talk by day, the pack talks among
// itself and the dead talk among themselves.
func checkCanWrite(game Game, sender Player, channel Channel) error {
	if game.Status != StatusActive {
		if channel == ChannelGlobal {
			return nil
		}
		return ErrChannelForbidden
	}

	switch channel {
	case ChannelGlobal:
		if !sender.IsAlive || game.Phase == PhaseNight {
			return ErrChannelForbidden
		}
		if sender.IsMuted {
			return ErrMuted
		}
		return nil
	case ChannelWolves:
		if sender.IsAlive && sender.Team == TeamBad {
			return nil
		}
	case ChannelDead:
		if !sender.IsAlive {
			return nil
		}
	}
	return ErrChannelForbidden
}

// canRead reports whether viewer may see messages on channel. A nil viewer
// is a spectator.
func canRead(game Game, viewer *Player, channel Channel) bool {
	if channel == ChannelGlobal || game.Status == StatusEnded {
		return true
	}
	if viewer == nil {
		return false
	}
	switch channel {
	case ChannelWolves:
		return viewer.Team == TeamBad
	case ChannelDead:
		return !viewer.IsAlive
	}
	return false
}

func visibleChat(game Game, viewer *Player, messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if canRead(game, viewer, msg.Channel) {
			out = append(out, msg)
		}
	}
	return out
}
