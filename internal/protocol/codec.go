package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/rmendes/huddle/internal/domain"
)

var errMissingID = errors.New("missing id")

type envelope struct {
	Type string `json:"type"`
}

type wireChat struct {
	Source   string `json:"source"`
	Dest     string `json:"dest"`
	Username string `json:"username"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Time     string `json:"time"`
}

type wireICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

// Decode parses one raw frame into a typed event. Unknown types come
// back as UnrecognizedEvent with a nil error; a recognized type with a
// malformed payload returns a *DecodeError.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Type: "", Err: err}
	}

	switch env.Type {
	case "ping":
		return PingEvent{}, nil

	case "joined":
		var p struct {
			RTCConfiguration struct {
				ICEServers []wireICEServer `json:"iceServers"`
			} `json:"rtcConfiguration"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		ev := JoinedEvent{}
		for _, s := range p.RTCConfiguration.ICEServers {
			ev.ICEServers = append(ev.ICEServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
		return ev, nil

	case "user":
		var p struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Kind     string `json:"kind"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		return UserEvent{ID: domain.UserID(p.ID), Username: p.Username, Kind: p.Kind}, nil

	case "chat", "chat-history":
		var p wireChat
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		return ChatEvent{
			Source:   p.Source,
			Dest:     p.Dest,
			Username: p.Username,
			Kind:     p.Kind,
			Value:    p.Value,
			Time:     p.Time,
			History:  env.Type == "chat-history",
		}, nil

	case "offer":
		var p struct {
			ID       string `json:"id"`
			Source   string `json:"source"`
			Username string `json:"username"`
			Label    string `json:"label"`
			SDP      string `json:"sdp"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		if p.SDP == "" {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing sdp")}
		}
		return OfferEvent{
			ID:       domain.StreamID(p.ID),
			Source:   p.Source,
			Username: p.Username,
			Label:    p.Label,
			SDP:      p.SDP,
		}, nil

	case "answer":
		var p struct {
			ID  string `json:"id"`
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		if p.SDP == "" {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing sdp")}
		}
		return AnswerEvent{ID: domain.StreamID(p.ID), SDP: p.SDP}, nil

	case "ice":
		var p struct {
			ID        string                   `json:"id"`
			Candidate *webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		if p.Candidate == nil {
			return nil, &DecodeError{Type: env.Type, Err: errors.New("missing candidate")}
		}
		return ICEEvent{ID: domain.StreamID(p.ID), Candidate: *p.Candidate}, nil

	case "close":
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		return CloseEvent{ID: domain.StreamID(p.ID)}, nil

	case "renegotiate":
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &DecodeError{Type: env.Type, Err: err}
		}
		if p.ID == "" {
			return nil, &DecodeError{Type: env.Type, Err: errMissingID}
		}
		return RenegotiateEvent{ID: domain.StreamID(p.ID)}, nil

	default:
		return UnrecognizedEvent{Type: env.Type}, nil
	}
}

// Encode serializes a command into one wire frame. The mapping is
// exhaustive over the closed command set.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case HandshakeCommand:
		return json.Marshal(struct {
			Type    string   `json:"type"`
			Version []string `json:"version"`
			ID      string   `json:"id"`
		}{"handshake", c.Version, c.ID})

	case JoinCommand:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Kind     string `json:"kind"`
			Group    string `json:"group"`
			Username string `json:"username"`
			Password string `json:"password"`
		}{"join", "join", c.Group, c.Username, c.Password})

	case RequestMediaCommand:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Request struct {
				Camera []string `json:"camera"`
			} `json:"request"`
		}{Type: "request-media", Request: struct {
			Camera []string `json:"camera"`
		}{Camera: c.Camera}})

	case PongCommand:
		return json.Marshal(envelope{Type: "pong"})

	case ChatCommand:
		return json.Marshal(struct {
			Type string `json:"type"`
			wireChat
		}{Type: "chat", wireChat: wireChat{
			Source:   c.Source,
			Dest:     c.Dest,
			Username: c.Username,
			Kind:     c.Kind,
			Value:    c.Value,
		}})

	case OfferCommand:
		return json.Marshal(struct {
			Type     string `json:"type"`
			ID       string `json:"id"`
			Source   string `json:"source"`
			Username string `json:"username"`
			Label    string `json:"label"`
			SDP      string `json:"sdp"`
		}{"offer", string(c.ID), c.Source, c.Username, c.Label, c.SDP})

	case AnswerCommand:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			SDP  string `json:"sdp"`
		}{"answer", string(c.ID), c.SDP})

	case ICECommand:
		return json.Marshal(struct {
			Type      string                  `json:"type"`
			ID        string                  `json:"id"`
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}{"ice", string(c.ID), c.Candidate})

	case RenegotiateRequestCommand:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{"renegotiate-request", string(c.ID)})

	case CloseCommand:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{"close", string(c.ID)})

	default:
		return nil, fmt.Errorf("unknown command type %T", cmd)
	}
}
