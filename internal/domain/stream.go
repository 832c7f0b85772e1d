package domain

// StreamID correlates every signaling message with one media stream.
// Generated locally for the published stream, supplied by the server
// for remote streams.
type StreamID string

// Direction tells whether a stream session carries local media out or
// remote media in.
type Direction int

const (
	Upstream Direction = iota
	Downstream
)

func (d Direction) String() string {
	switch d {
	case Upstream:
		return "up"
	case Downstream:
		return "down"
	}
	return "unknown"
}
