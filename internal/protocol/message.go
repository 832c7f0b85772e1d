// Package protocol converts between the server's JSON message envelope
// and a closed set of typed signaling events and commands.
package protocol

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/rmendes/huddle/internal/domain"
)

// Event is an inbound signaling message, already decoded and typed.
type Event interface{ isEvent() }

type PingEvent struct{}

// JoinedEvent acknowledges a group join and carries the ICE servers to
// use for every media session on this connection.
type JoinedEvent struct {
	ICEServers []webrtc.ICEServer
}

// UserEvent announces a roster change. Kind "delete" removes the
// participant; anything else is a join/update.
type UserEvent struct {
	ID       domain.UserID
	Username string
	Kind     string
}

func (e UserEvent) IsDelete() bool { return e.Kind == "delete" }

type ChatEvent struct {
	Source   string
	Dest     string
	Username string
	Kind     string
	Value    string
	Time     string
	History  bool
}

type OfferEvent struct {
	ID       domain.StreamID
	Source   string
	Username string
	Label    string
	SDP      string
}

type AnswerEvent struct {
	ID  domain.StreamID
	SDP string
}

type ICEEvent struct {
	ID        domain.StreamID
	Candidate webrtc.ICECandidateInit
}

type CloseEvent struct {
	ID domain.StreamID
}

type RenegotiateEvent struct {
	ID domain.StreamID
}

// UnrecognizedEvent is any message whose type the codec does not know.
// The session manager ignores it; forward compatibility is achieved by
// ignoring, not erroring.
type UnrecognizedEvent struct {
	Type string
}

func (PingEvent) isEvent()         {}
func (JoinedEvent) isEvent()       {}
func (UserEvent) isEvent()         {}
func (ChatEvent) isEvent()         {}
func (OfferEvent) isEvent()        {}
func (AnswerEvent) isEvent()       {}
func (ICEEvent) isEvent()          {}
func (CloseEvent) isEvent()        {}
func (RenegotiateEvent) isEvent()  {}
func (UnrecognizedEvent) isEvent() {}

// Command is an outbound signaling message.
type Command interface{ isCommand() }

type HandshakeCommand struct {
	Version []string
	ID      string
}

type JoinCommand struct {
	Group    string
	Username string
	Password string
}

// RequestMediaCommand asks the server for the given media kinds on the
// camera source, e.g. ["audio", "video"].
type RequestMediaCommand struct {
	Camera []string
}

type PongCommand struct{}

type ChatCommand struct {
	Source   string
	Dest     string
	Username string
	Kind     string
	Value    string
}

type OfferCommand struct {
	ID       domain.StreamID
	Source   string
	Username string
	Label    string
	SDP      string
}

type AnswerCommand struct {
	ID  domain.StreamID
	SDP string
}

type ICECommand struct {
	ID        domain.StreamID
	Candidate webrtc.ICECandidateInit
}

type RenegotiateRequestCommand struct {
	ID domain.StreamID
}

type CloseCommand struct {
	ID domain.StreamID
}

func (HandshakeCommand) isCommand()          {}
func (JoinCommand) isCommand()               {}
func (RequestMediaCommand) isCommand()       {}
func (PongCommand) isCommand()               {}
func (ChatCommand) isCommand()               {}
func (OfferCommand) isCommand()              {}
func (AnswerCommand) isCommand()             {}
func (ICECommand) isCommand()                {}
func (RenegotiateRequestCommand) isCommand() {}
func (CloseCommand) isCommand()              {}

// DecodeError reports a malformed payload for a recognized message
// type. The caller logs it and drops the frame; decoding must never
// block processing of subsequent frames.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
