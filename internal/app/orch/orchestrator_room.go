package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/domain"
	"github.com/rmendes/huddle/internal/protocol"
)

func (m *Manager) dispatchRoomEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.JoinedEvent:
		// Accumulated for every media session built on this connection.
		m.iceServers = append(m.iceServers, ev.ICEServers...)
		log.Info().Str("module", "orch").Int("ice_servers", len(m.iceServers)).Msg("joined group")

	case protocol.UserEvent:
		if ev.IsDelete() {
			m.Room.Remove(ev.ID)
			log.Info().Str("module", "orch").Str("user", string(ev.ID)).Msg("participant left")
			return
		}
		m.Room.Upsert(domain.Participant{ID: ev.ID, Username: ev.Username})
		log.Info().Str("module", "orch").Str("user", string(ev.ID)).
			Str("username", ev.Username).Msg("participant joined")

	case protocol.ChatEvent:
		m.Room.AppendChat(domain.ChatEntry{
			Username: ev.Username,
			Value:    ev.Value,
			Time:     ev.Time,
		})
	}
}

// SendChat posts an outbound chat command for the joined group.
func (m *Manager) SendChat(value string) {
	m.Post(func() {
		m.Emit(protocol.ChatCommand{
			Source:   m.clientID,
			Username: m.params.Username,
			Value:    value,
		})
	})
}
