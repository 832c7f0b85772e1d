package orch

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/app"
	"github.com/rmendes/huddle/internal/core"
	"github.com/rmendes/huddle/internal/domain"
	"github.com/rmendes/huddle/internal/protocol"
)

// newSession builds a media-engine session and wraps it in a stream
// session. Runs inside the registry's check-and-insert, so the engine
// handle is created at most once per stream id.
func (m *Manager) newSession(dir domain.Direction, id domain.StreamID, username string) (*app.StreamSession, error) {
	ms, err := m.Engine.NewSession(dir, m.iceServers)
	if err != nil {
		return nil, err
	}
	s := app.NewStreamSession(id, dir, ms, m, m.clientID, username)
	m.bindMediaHandlers(ms, s)
	return s, nil
}

// bindMediaHandlers marshals engine callbacks onto the run loop. A
// callback arriving after the session closed is discarded there.
func (m *Manager) bindMediaHandlers(ms core.MediaSession, s *app.StreamSession) {
	ms.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		m.Post(func() {
			if s.State() == app.StateClosed {
				return
			}
			// Trickle ICE is state-independent.
			m.Emit(protocol.ICECommand{ID: s.ID(), Candidate: ci})
		})
	})
	ms.OnRenegotiationNeeded(func() {
		m.Post(func() {
			if s.State() != app.StateStable {
				return
			}
			switch s.Direction() {
			case domain.Upstream:
				s.StartOffer()
			case domain.Downstream:
				// The server owns downstream offers; ask it to resend.
				m.Emit(protocol.RenegotiateRequestCommand{ID: s.ID()})
			}
		})
	})
	ms.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		// Rendering lives outside this subsystem.
		log.Info().Str("module", "orch").Str("stream", string(s.ID())).
			Str("kind", track.Kind().String()).Msg("remote track available")
	})
}

// Publish creates the upstream session lazily and starts the offer
// cycle. Idempotent while a published stream exists.
func (m *Manager) Publish() {
	m.Post(func() {
		id := domain.StreamID(uuid.NewString())
		s, created, err := m.Registry.GetOrCreate(domain.Upstream, id, func() (*app.StreamSession, error) {
			return m.newSession(domain.Upstream, id, m.params.Username)
		})
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("upstream session create")
			return
		}
		if !created {
			log.Debug().Str("module", "orch").Str("stream", string(s.ID())).Msg("already publishing")
			return
		}
		s.StartOffer()
	})
}

// Unpublish tears the upstream session down and tells the server.
func (m *Manager) Unpublish() {
	m.Post(func() {
		s, ok := m.Registry.Upstream()
		if !ok {
			return
		}
		m.Emit(protocol.CloseCommand{ID: s.ID()})
		m.Drop(s, nil)
	})
}

// Streams returns read-only session snapshots for presentation.
func (m *Manager) Streams() []app.Snapshot {
	sessions := append(m.Registry.All(domain.Upstream), m.Registry.All(domain.Downstream)...)
	out := make([]app.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}
