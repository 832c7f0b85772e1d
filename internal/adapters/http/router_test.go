package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/rmendes/huddle/internal/app/orch"
	"github.com/rmendes/huddle/internal/config"
	"github.com/rmendes/huddle/internal/core"
	"github.com/rmendes/huddle/internal/domain"
)

type stubTransport struct {
	mu      sync.Mutex
	sent    []core.Frame
	inbound chan core.Frame
	states  chan core.ConnEvent
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		inbound: make(chan core.Frame),
		states:  make(chan core.ConnEvent),
	}
}

func (s *stubTransport) Connect(context.Context) error { return nil }

func (s *stubTransport) Send(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, f)
	return nil
}

func (s *stubTransport) Inbound() <-chan core.Frame    { return s.inbound }
func (s *stubTransport) States() <-chan core.ConnEvent { return s.states }
func (s *stubTransport) Close()                        {}

func (s *stubTransport) frames() []core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

type stubEngine struct{}

func (stubEngine) NewSession(domain.Direction, []webrtc.ICEServer) (core.MediaSession, error) {
	return nil, errors.New("media disabled in tests")
}

func newTestRouter(t *testing.T) (*gin.Engine, *orch.Manager, *stubTransport) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := newStubTransport()
	mgr := orch.NewManager(st, stubEngine{}, orch.Params{Group: "public", Username: "alice"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = mgr.Run(ctx) }()
	t.Cleanup(cancel)
	r := SetupRouter(&config.Config{Mode: "release", Group: "public"}, mgr)
	return r, mgr, st
}

func TestParticipantsEndpoint(t *testing.T) {
	r, mgr, _ := newTestRouter(t)
	mgr.Room.Upsert(domain.Participant{ID: "u1", Username: "Alice"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/participants", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var body struct {
		Participants []domain.Participant `json:"participants"`
		Count        int                  `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Participants) != 1 || body.Participants[0].Username != "Alice" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestMessagesEndpoint(t *testing.T) {
	r, mgr, _ := newTestRouter(t)
	mgr.Room.AppendChat(domain.ChatEntry{Username: "bob", Value: "hi", Time: "12:00"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"value":"hi"`) {
		t.Errorf("chat entry missing: %s", w.Body.String())
	}
}

func TestStreamsEndpointEmpty(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/streams", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestPostMessageValidatesPayload(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostMessageSendsChatCommand(t *testing.T) {
	r, _, st := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"value":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range st.frames() {
			if strings.Contains(string(f), `"type":"chat"`) && strings.Contains(string(f), `"value":"hello"`) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("chat command never reached the transport")
}
