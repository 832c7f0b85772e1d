// Package orch holds the signaling session manager: one goroutine that
// owns the session registry and room state, fed by the transport's
// inbound frames and by completions posted back from the media engine.
package orch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/app"
	"github.com/rmendes/huddle/internal/core"
	"github.com/rmendes/huddle/internal/domain"
	"github.com/rmendes/huddle/internal/protocol"
)

// Params carries the join credentials.
type Params struct {
	Group    string
	Username string
	Password string
}

// Manager routes every inbound event to room state or to the matching
// stream session, and serializes every outbound command. All session
// and registry mutations happen on its run loop; nothing else writes.
type Manager struct {
	Transport core.SignalTransport
	Engine    core.MediaEngine
	Registry  *app.Registry
	Room      *core.RoomState

	params   Params
	clientID string

	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once

	// loop-confined state
	iceServers []webrtc.ICEServer
	degraded   bool
}

func NewManager(t core.SignalTransport, e core.MediaEngine, params Params) *Manager {
	return &Manager{
		Transport: t,
		Engine:    e,
		Registry:  app.NewRegistry(),
		Room:      core.NewRoomState(),
		params:    params,
		clientID:  uuid.NewString(),
		tasks:     make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// ClientID is the locally generated id stamped on handshake, chat and
// offer commands.
func (m *Manager) ClientID() string { return m.clientID }

// Run connects the transport and processes events until ctx is
// cancelled. It is the single serialized execution context for all
// signaling state.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Transport.Connect(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case ev := <-m.Transport.States():
			m.handleConnEvent(ev)
		case frame, ok := <-m.Transport.Inbound():
			if !ok {
				m.shutdown()
				return nil
			}
			m.handleFrame(frame)
		case fn := <-m.tasks:
			fn()
		}
	}
}

func (m *Manager) shutdown() {
	m.stopOnce.Do(func() {
		for _, s := range m.Registry.Drain() {
			s.Close()
		}
		m.Transport.Close()
		close(m.done)
		log.Info().Str("module", "orch").Msg("session manager stopped")
	})
}

// Post marshals fn onto the run loop. Safe to call from engine
// callbacks and other goroutines; a no-op after shutdown.
func (m *Manager) Post(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.done:
	}
}

// Emit encodes and sends one command. While the connection is degraded
// commands are dropped; the join sequence after reconnect rebuilds any
// state the server missed.
func (m *Manager) Emit(cmd protocol.Command) {
	if m.degraded {
		log.Debug().Str("module", "orch").Msgf("degraded, dropping %T", cmd)
		return
	}
	data, err := protocol.Encode(cmd)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode command")
		return
	}
	if err := m.Transport.Send(core.Frame(data)); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("transport send, marking degraded")
		m.degraded = true
	}
}

// Drop closes a stream session and removes its registry entry. A nil
// cause is an orderly close; anything else is a negotiation failure
// that affects only this session.
func (m *Manager) Drop(s *app.StreamSession, cause error) {
	if cause != nil {
		log.Error().Err(cause).Str("module", "orch").
			Str("stream", string(s.ID())).Msg("negotiation failed")
	}
	m.Registry.Remove(s.Direction(), s.ID())
	s.Close()
}

func (m *Manager) handleConnEvent(ev core.ConnEvent) {
	switch ev.State {
	case core.ConnConnected:
		log.Info().Str("module", "orch").Msg("transport connected, joining")
		m.degraded = false
		m.resetState()
		m.Emit(protocol.HandshakeCommand{Version: []string{"2"}, ID: m.clientID})
		m.Emit(protocol.JoinCommand{
			Group:    m.params.Group,
			Username: m.params.Username,
			Password: m.params.Password,
		})
		m.Emit(protocol.RequestMediaCommand{Camera: []string{"audio", "video"}})
	case core.ConnDisconnected:
		if ev.Err != nil {
			log.Warn().Err(ev.Err).Str("module", "orch").Msg("transport disconnected")
		} else {
			log.Info().Str("module", "orch").Msg("transport disconnected")
		}
		m.degraded = true
		for _, s := range m.Registry.Drain() {
			s.Close()
		}
	}
}

// resetState discards everything tied to the previous connection; the
// server replays roster, history and streams after the fresh join.
func (m *Manager) resetState() {
	for _, s := range m.Registry.Drain() {
		s.Close()
	}
	m.Room.Reset()
	m.iceServers = nil
}

func (m *Manager) handleFrame(frame core.Frame) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("undecodable frame dropped")
		return
	}
	switch ev := ev.(type) {
	case protocol.PingEvent:
		// Liveness first, always.
		m.Emit(protocol.PongCommand{})
	case protocol.JoinedEvent, protocol.UserEvent, protocol.ChatEvent:
		m.dispatchRoomEvent(ev)
	case protocol.OfferEvent, protocol.AnswerEvent, protocol.ICEEvent,
		protocol.CloseEvent, protocol.RenegotiateEvent:
		m.dispatchStreamEvent(ev)
	case protocol.UnrecognizedEvent:
		log.Debug().Str("module", "orch").Str("type", ev.Type).Msg("unrecognized message ignored")
	}
}

func (m *Manager) dispatchStreamEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.OfferEvent:
		// An offer for an unknown id is how we discover a newly
		// published remote stream.
		s, _, err := m.Registry.GetOrCreate(domain.Downstream, ev.ID, func() (*app.StreamSession, error) {
			return m.newSession(domain.Downstream, ev.ID, ev.Username)
		})
		if err != nil {
			log.Error().Err(err).Str("module", "orch").
				Str("stream", string(ev.ID)).Msg("downstream session create")
			return
		}
		s.HandleOffer(ev.SDP)

	case protocol.AnswerEvent:
		s, ok := m.Registry.Get(domain.Upstream, ev.ID)
		if !ok {
			// Stream was closed locally before the answer arrived.
			log.Debug().Str("module", "orch").Str("stream", string(ev.ID)).
				Msg("answer for unknown stream dropped")
			return
		}
		s.HandleAnswer(ev.SDP)

	case protocol.ICEEvent:
		// Candidates may outrun the offer for a new remote stream;
		// create the downstream session and let it buffer them.
		s, ok := m.Registry.Find(ev.ID)
		if !ok {
			var err error
			s, _, err = m.Registry.GetOrCreate(domain.Downstream, ev.ID, func() (*app.StreamSession, error) {
				return m.newSession(domain.Downstream, ev.ID, "")
			})
			if err != nil {
				log.Error().Err(err).Str("module", "orch").
					Str("stream", string(ev.ID)).Msg("downstream session create")
				return
			}
		}
		s.HandleCandidate(ev.Candidate)

	case protocol.CloseEvent:
		s, ok := m.Registry.Find(ev.ID)
		if !ok {
			return
		}
		m.Drop(s, nil)

	case protocol.RenegotiateEvent:
		s, ok := m.Registry.Find(ev.ID)
		if !ok {
			log.Debug().Str("module", "orch").Str("stream", string(ev.ID)).
				Msg("renegotiate for unknown stream dropped")
			return
		}
		s.Restart()
	}
}
