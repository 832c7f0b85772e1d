// Package rtc adapts pion/webrtc to the core media-engine interface.
// Codec negotiation and RTP stay behind the PeerConnection; the
// signaling core only ever sees descriptions and candidates.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/core"
	"github.com/rmendes/huddle/internal/domain"
)

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// NewSession builds a PeerConnection for one stream. Upstream sessions
// get send-only audio and video transceivers so the offer carries both
// m-lines; downstream sessions take their shape from the remote offer.
func (e *Engine) NewSession(dir domain.Direction, servers []webrtc.ICEServer) (core.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}

	if dir == domain.Upstream {
		init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, init); err != nil {
			_ = pc.Close()
			return nil, err
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, init); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	s := &Session{pc: pc, dir: dir}
	s.bind()
	return s, nil
}

// Session wraps one PeerConnection.
type Session struct {
	pc  *webrtc.PeerConnection
	dir domain.Direction

	onICE   func(webrtc.ICECandidateInit)
	onReneg func()
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (s *Session) bind() {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && s.onICE != nil {
			s.onICE(c.ToJSON())
		}
	})
	s.pc.OnNegotiationNeeded(func() {
		if s.onReneg != nil {
			s.onReneg()
		}
	})
	s.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("dir", s.dir.String()).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).Msg("remote track")
		if s.onTrack != nil {
			s.onTrack(track, receiver)
		}
	})
	s.pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("dir", s.dir.String()).
			Str("ice_state", st.String()).Msg("ICE state")
	})
}

// CreateOffer builds and installs the local offer. No gather wait:
// candidates trickle through OnICECandidate.
func (s *Session) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (s *Session) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return s.pc.SetRemoteDescription(desc)
}

func (s *Session) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(ci)
}

func (s *Session) OnICECandidate(fn func(webrtc.ICECandidateInit)) { s.onICE = fn }

func (s *Session) OnRenegotiationNeeded(fn func()) { s.onReneg = fn }

func (s *Session) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { s.onTrack = fn }

func (s *Session) Close() {
	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("dir", s.dir.String()).Msg("close error")
	}
}
