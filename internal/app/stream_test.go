package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/rmendes/huddle/internal/domain"
	"github.com/rmendes/huddle/internal/protocol"
)

var errSDPRejected = errors.New("sdp rejected")

// fakeMedia records every engine call in order.
type fakeMedia struct {
	mu        sync.Mutex
	calls     []string
	offerErr  error
	answerErr error
	remoteErr error
	candErr   error
	closed    int
}

func (f *fakeMedia) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeMedia) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeMedia) CreateOffer() (webrtc.SessionDescription, error) {
	f.record("createOffer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, f.offerErr
}

func (f *fakeMedia) CreateAnswer() (webrtc.SessionDescription, error) {
	f.record("createAnswer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, f.answerErr
}

func (f *fakeMedia) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.record("setRemote:" + d.SDP)
	return f.remoteErr
}

func (f *fakeMedia) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.record("candidate:" + ci.Candidate)
	return f.candErr
}

func (f *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (f *fakeMedia) OnRenegotiationNeeded(func()) {}

func (f *fakeMedia) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (f *fakeMedia) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeMedia) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeEnv runs posted completions inline and records emissions.
type fakeEnv struct {
	mu      sync.Mutex
	emitted []protocol.Command
	drops   []error
}

func (e *fakeEnv) Post(fn func()) { fn() }

func (e *fakeEnv) Emit(cmd protocol.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, cmd)
}

func (e *fakeEnv) Drop(s *StreamSession, cause error) {
	e.mu.Lock()
	e.drops = append(e.drops, cause)
	e.mu.Unlock()
	s.Close()
}

func (e *fakeEnv) commands() []protocol.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.Command, len(e.emitted))
	copy(out, e.emitted)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newSessionWithEnv(dir domain.Direction) (*StreamSession, *fakeMedia, *fakeEnv) {
	fm := &fakeMedia{}
	env := &fakeEnv{}
	s := NewStreamSession("s1", dir, fm, env, "me", "alice")
	return s, fm, env
}

func TestDownstreamOfferProducesAnswer(t *testing.T) {
	s, fm, env := newSessionWithEnv(domain.Downstream)

	s.HandleOffer("remote-offer")
	waitFor(t, "answer sent", func() bool { return s.State() == StateAnswerSent })

	calls := fm.callList()
	want := []string{"setRemote:remote-offer", "createAnswer"}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	cmds := env.commands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	ans, ok := cmds[0].(protocol.AnswerCommand)
	if !ok || ans.SDP != "local-answer" || ans.ID != "s1" {
		t.Errorf("unexpected answer command: %+v", cmds[0])
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	s, fm, _ := newSessionWithEnv(domain.Downstream)

	s.HandleCandidate(webrtc.ICECandidateInit{Candidate: "A"})
	s.HandleCandidate(webrtc.ICECandidateInit{Candidate: "B"})
	if got := s.PendingCandidates(); got != 2 {
		t.Fatalf("expected 2 buffered candidates, got %d", got)
	}
	if len(fm.callList()) != 0 {
		t.Fatalf("no engine calls expected before remote description, got %v", fm.callList())
	}

	s.HandleOffer("remote-offer")
	waitFor(t, "answer sent", func() bool { return s.State() == StateAnswerSent })

	calls := fm.callList()
	want := []string{"setRemote:remote-offer", "candidate:A", "candidate:B", "createAnswer"}
	for i := range want {
		if i >= len(calls) || calls[i] != want[i] {
			t.Fatalf("expected call order %v, got %v", want, calls)
		}
	}
	if got := s.PendingCandidates(); got != 0 {
		t.Errorf("expected buffer flushed, %d left", got)
	}
}

func TestCandidateAfterRemoteDescriptionAppliesImmediately(t *testing.T) {
	s, fm, _ := newSessionWithEnv(domain.Downstream)

	s.HandleOffer("remote-offer")
	waitFor(t, "answer sent", func() bool { return s.State() == StateAnswerSent })

	s.HandleCandidate(webrtc.ICECandidateInit{Candidate: "late"})
	calls := fm.callList()
	if calls[len(calls)-1] != "candidate:late" {
		t.Fatalf("expected immediate candidate apply, calls %v", calls)
	}
	// Candidate exchange after our answer settles the session.
	if s.State() != StateStable {
		t.Errorf("expected stable, got %s", s.State())
	}
}

func TestUpstreamOfferAnswerFlow(t *testing.T) {
	s, fm, env := newSessionWithEnv(domain.Upstream)

	s.StartOffer()
	waitFor(t, "offer sent", func() bool { return s.State() == StateOfferSent })

	cmds := env.commands()
	offer, ok := cmds[0].(protocol.OfferCommand)
	if !ok || offer.SDP != "local-offer" || offer.Label != "camera" || offer.Source != "me" {
		t.Fatalf("unexpected offer command: %+v", cmds[0])
	}

	s.HandleAnswer("remote-answer")
	waitFor(t, "stable", func() bool { return s.State() == StateStable })

	calls := fm.callList()
	want := []string{"createOffer", "setRemote:remote-answer"}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected call order %v, got %v", want, calls)
		}
	}
}

func TestAnswerOutOfTurnDropped(t *testing.T) {
	s, fm, _ := newSessionWithEnv(domain.Upstream)

	s.HandleAnswer("unsolicited")
	time.Sleep(20 * time.Millisecond)
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if len(fm.callList()) != 0 {
		t.Errorf("no engine calls expected, got %v", fm.callList())
	}
}

func TestRenegotiateRerunsOfferCycle(t *testing.T) {
	s, _, env := newSessionWithEnv(domain.Upstream)

	s.StartOffer()
	waitFor(t, "offer sent", func() bool { return s.State() == StateOfferSent })
	s.HandleAnswer("remote-answer")
	waitFor(t, "stable", func() bool { return s.State() == StateStable })

	s.HandleCandidate(webrtc.ICECandidateInit{Candidate: "kept"})

	s.Restart()
	waitFor(t, "second offer", func() bool { return s.State() == StateOfferSent })

	offers := 0
	for _, cmd := range env.commands() {
		if _, ok := cmd.(protocol.OfferCommand); ok {
			offers++
		}
	}
	if offers != 2 {
		t.Errorf("expected 2 offers, got %d", offers)
	}
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	s, fm, _ := newSessionWithEnv(domain.Downstream)

	if !s.Close() {
		t.Fatal("first close must report true")
	}
	if s.Close() {
		t.Fatal("second close must be a no-op")
	}
	if fm.closeCount() != 1 {
		t.Fatalf("media handle must be released exactly once, got %d", fm.closeCount())
	}

	// Events after close are discarded.
	s.HandleOffer("late-offer")
	s.HandleCandidate(webrtc.ICECandidateInit{Candidate: "late"})
	s.HandleAnswer("late-answer")
	time.Sleep(20 * time.Millisecond)
	if got := fm.callList(); len(got) != 0 {
		t.Errorf("no engine calls expected after close, got %v", got)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
}

func TestNegotiationErrorClosesSession(t *testing.T) {
	s, fm, env := newSessionWithEnv(domain.Downstream)
	fm.remoteErr = errSDPRejected

	s.HandleOffer("bad-offer")
	waitFor(t, "session dropped", func() bool { return s.State() == StateClosed })

	env.mu.Lock()
	defer env.mu.Unlock()
	if len(env.drops) != 1 || env.drops[0] != errSDPRejected {
		t.Errorf("expected one drop with cause, got %v", env.drops)
	}
}
