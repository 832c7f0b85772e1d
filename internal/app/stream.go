package app

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/core"
	"github.com/rmendes/huddle/internal/domain"
	"github.com/rmendes/huddle/internal/protocol"
)

// NegotiationState is the per-stream protocol state.
type NegotiationState int

const (
	StateIdle NegotiationState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateAnswerReceived
	StateStable
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateAnswerReceived:
		return "answer-received"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SessionEnv is what a stream session needs from its owner: a way back
// onto the serialized signaling loop, an outbound command path, and a
// terminal drop. Implemented by the orchestrator.
type SessionEnv interface {
	// Post marshals fn onto the signaling loop. Media-engine results
	// must pass through here before touching session state.
	Post(fn func())
	// Emit sends one outbound command, best-effort.
	Emit(cmd protocol.Command)
	// Drop closes the session and removes its registry entry. cause is
	// nil for an orderly close.
	Drop(s *StreamSession, cause error)
}

// StreamSession is one offer/answer negotiation for a single stream id.
// All mutating methods run on the signaling loop; the engine's async
// results re-enter through env.Post. The mutex only makes the snapshot
// accessors safe for readers outside the loop.
type StreamSession struct {
	id    domain.StreamID
	dir   domain.Direction
	env   SessionEnv
	media core.MediaSession

	// identity stamped on outbound offers
	source   string
	username string
	label    string

	mu        sync.Mutex
	state     NegotiationState
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func NewStreamSession(id domain.StreamID, dir domain.Direction, media core.MediaSession, env SessionEnv, source, username string) *StreamSession {
	return &StreamSession{
		id:       id,
		dir:      dir,
		env:      env,
		media:    media,
		source:   source,
		username: username,
		label:    "camera",
		state:    StateIdle,
	}
}

func (s *StreamSession) ID() domain.StreamID         { return s.id }
func (s *StreamSession) Direction() domain.Direction { return s.dir }

func (s *StreamSession) State() NegotiationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StreamSession) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *StreamSession) setState(next NegotiationState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	log.Debug().Str("module", "app.stream").Str("stream", string(s.id)).
		Str("from", prev.String()).Str("to", next.String()).Msg("negotiation transition")
}

func (s *StreamSession) closed() bool { return s.State() == StateClosed }

// StartOffer runs the offer half of the cycle: build a local offer off
// the loop, then emit it and move to OfferSent. Also used for
// renegotiation; buffered candidates survive.
func (s *StreamSession) StartOffer() {
	if s.closed() {
		return
	}
	go func() {
		offer, err := s.media.CreateOffer()
		s.env.Post(func() {
			if s.closed() {
				return
			}
			if err != nil {
				s.env.Drop(s, err)
				return
			}
			s.env.Emit(protocol.OfferCommand{
				ID:       s.id,
				Source:   s.source,
				Username: s.username,
				Label:    s.label,
				SDP:      offer.SDP,
			})
			s.setState(StateOfferSent)
		})
	}()
}

// HandleOffer applies a remote offer, flushes buffered candidates, then
// answers. A renegotiation offer for an established session goes
// through the same path.
func (s *StreamSession) HandleOffer(sdp string) {
	if s.closed() {
		return
	}
	s.setState(StateOfferReceived)
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	go func() {
		err := s.media.SetRemoteDescription(desc)
		s.env.Post(func() {
			if s.closed() {
				return
			}
			if err != nil {
				s.env.Drop(s, err)
				return
			}
			if !s.flushPending() {
				return
			}
			s.sendAnswer()
		})
	}()
}

func (s *StreamSession) sendAnswer() {
	go func() {
		answer, err := s.media.CreateAnswer()
		s.env.Post(func() {
			if s.closed() {
				return
			}
			if err != nil {
				s.env.Drop(s, err)
				return
			}
			s.env.Emit(protocol.AnswerCommand{ID: s.id, SDP: answer.SDP})
			s.setState(StateAnswerSent)
		})
	}()
}

// HandleAnswer applies the remote answer to our offer. Answers in any
// other state are dropped; they lose the race against a local close.
func (s *StreamSession) HandleAnswer(sdp string) {
	if s.State() != StateOfferSent {
		log.Warn().Str("module", "app.stream").Str("stream", string(s.id)).
			Str("state", s.State().String()).Msg("answer out of turn, dropped")
		return
	}
	s.setState(StateAnswerReceived)
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	go func() {
		err := s.media.SetRemoteDescription(desc)
		s.env.Post(func() {
			if s.closed() {
				return
			}
			if err != nil {
				s.env.Drop(s, err)
				return
			}
			if !s.flushPending() {
				return
			}
			s.setState(StateStable)
		})
	}()
}

// HandleCandidate applies or buffers a remote ICE candidate. Before the
// remote description is set candidates are buffered in arrival order;
// afterwards they go straight to the engine.
func (s *StreamSession) HandleCandidate(ci webrtc.ICECandidateInit) {
	if s.closed() {
		return
	}
	s.mu.Lock()
	ready := s.remoteSet
	if !ready {
		s.pending = append(s.pending, ci)
	}
	s.mu.Unlock()
	if !ready {
		return
	}
	if err := s.media.AddICECandidate(ci); err != nil {
		s.env.Drop(s, err)
		return
	}
	// Candidate traffic after our answer means the peer took it.
	if s.State() == StateAnswerSent {
		s.setState(StateStable)
	}
}

// flushPending marks the remote description applied and feeds buffered
// candidates to the engine in arrival order. Returns false when a
// candidate was rejected and the session dropped.
func (s *StreamSession) flushPending() bool {
	s.mu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ci := range queued {
		if err := s.media.AddICECandidate(ci); err != nil {
			s.env.Drop(s, err)
			return false
		}
	}
	return true
}

// Restart re-runs the offer cycle for a remote renegotiate request.
// Buffered candidates are kept.
func (s *StreamSession) Restart() {
	if s.closed() {
		return
	}
	if s.State() != StateStable {
		log.Warn().Str("module", "app.stream").Str("stream", string(s.id)).
			Str("state", s.State().String()).Msg("renegotiate before stable")
	}
	s.StartOffer()
}

// Close releases the media handle exactly once and makes the state
// terminal. Returns false if the session was already closed.
func (s *StreamSession) Close() bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.pending = nil
	s.mu.Unlock()
	s.media.Close()
	log.Info().Str("module", "app.stream").Str("stream", string(s.id)).
		Str("dir", s.dir.String()).Msg("session closed")
	return true
}

// Snapshot is a read-only view for presentation.
type Snapshot struct {
	ID        domain.StreamID `json:"id"`
	Direction string          `json:"direction"`
	State     string          `json:"state"`
	Username  string          `json:"username,omitempty"`
}

func (s *StreamSession) Snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Direction: s.dir.String(),
		State:     s.State().String(),
		Username:  s.username,
	}
}
