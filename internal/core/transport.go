package core

import "context"

// Frame is one raw text frame on the signaling connection.
type Frame []byte

type ConnState int

const (
	ConnConnected ConnState = iota
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnEvent reports a transport state change. Err is set on abnormal
// disconnects and nil otherwise.
type ConnEvent struct {
	State ConnState
	Err   error
}

// SignalTransport abstracts the persistent message connection to the
// conferencing server. The adapter owns the socket and its reconnect
// policy; consumers see ordered frames and state changes on channels.
type SignalTransport interface {
	// Connect dials the server and starts delivering frames. A failed
	// initial dial is retried in the background; progress is reported
	// through States.
	Connect(ctx context.Context) error
	// Send queues one outbound frame. Returns an error when the
	// connection is down or the send queue is full.
	Send(Frame) error
	Inbound() <-chan Frame
	States() <-chan ConnEvent
	Close()
}
