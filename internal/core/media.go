package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/rmendes/huddle/internal/domain"
)

// MediaSession is one opaque media-engine session backing a stream.
// Owned exclusively by its StreamSession; released at most once.
type MediaSession interface {
	// CreateOffer builds a local offer and installs it as the local
	// description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer builds a local answer to a previously applied
	// remote offer and installs it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	// SetRemoteDescription applies the remote offer or answer.
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. Callers must not
	// invoke it before a remote description has been applied.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE
	// candidates. Runs on an engine-owned goroutine.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRenegotiationNeeded fires when the engine wants a fresh
	// offer/answer cycle (track added or removed mid-session).
	OnRenegotiationNeeded(func())
	// OnTrack fires when a remote media track becomes available.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// Close stops all underlying media resources.
	Close()
}

// MediaEngine creates media sessions. The signaling core treats the
// engine as an opaque capability; pion types cross the boundary but
// codec and RTP concerns never do.
type MediaEngine interface {
	NewSession(dir domain.Direction, servers []webrtc.ICEServer) (MediaSession, error)
}
