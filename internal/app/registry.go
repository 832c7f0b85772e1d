package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/domain"
)

// Registry owns every live StreamSession: the single upstream slot for
// the locally published stream and one downstream entry per remote
// stream. Construction is guarded by a single check-and-insert so a
// stream id never gets two media handles.
type Registry struct {
	mu   sync.RWMutex
	up   *StreamSession
	down map[domain.StreamID]*StreamSession
}

func NewRegistry() *Registry {
	return &Registry{down: make(map[domain.StreamID]*StreamSession)}
}

func (r *Registry) Get(dir domain.Direction, id domain.StreamID) (*StreamSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dir == domain.Upstream {
		if r.up != nil && r.up.ID() == id {
			return r.up, true
		}
		return nil, false
	}
	s, ok := r.down[id]
	return s, ok
}

// GetOrCreate returns the existing session for (dir, id) or runs the
// factory inside the critical section to build one. The created flag
// tells whether the factory ran. The upstream slot is a singleton: an
// existing upstream session is returned regardless of id.
func (r *Registry) GetOrCreate(dir domain.Direction, id domain.StreamID, factory func() (*StreamSession, error)) (*StreamSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir == domain.Upstream {
		if r.up != nil {
			return r.up, false, nil
		}
		s, err := factory()
		if err != nil {
			return nil, false, err
		}
		r.up = s
		log.Info().Str("module", "app.registry").Str("stream", string(id)).Msg("upstream session created")
		return s, true, nil
	}
	if s, ok := r.down[id]; ok {
		return s, false, nil
	}
	s, err := factory()
	if err != nil {
		return nil, false, err
	}
	r.down[id] = s
	log.Info().Str("module", "app.registry").Str("stream", string(id)).Msg("downstream session created")
	return s, true, nil
}

// Find looks a session up by stream id alone, upstream slot first.
// Inbound stream events carry only the id.
func (r *Registry) Find(id domain.StreamID) (*StreamSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.up != nil && r.up.ID() == id {
		return r.up, true
	}
	s, ok := r.down[id]
	return s, ok
}

func (r *Registry) Remove(dir domain.Direction, id domain.StreamID) (*StreamSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir == domain.Upstream {
		if r.up == nil || r.up.ID() != id {
			return nil, false
		}
		s := r.up
		r.up = nil
		log.Info().Str("module", "app.registry").Str("stream", string(id)).Msg("upstream session removed")
		return s, true
	}
	s, ok := r.down[id]
	if !ok {
		return nil, false
	}
	delete(r.down, id)
	log.Info().Str("module", "app.registry").Str("stream", string(id)).Msg("downstream session removed")
	return s, true
}

func (r *Registry) Upstream() (*StreamSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.up, r.up != nil
}

func (r *Registry) All(dir domain.Direction) []*StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dir == domain.Upstream {
		if r.up == nil {
			return nil
		}
		return []*StreamSession{r.up}
	}
	out := make([]*StreamSession, 0, len(r.down))
	for _, s := range r.down {
		out = append(out, s)
	}
	return out
}

// Drain removes every session and returns them for the caller to
// close. Used on disconnect, when all negotiation state is discarded.
func (r *Registry) Drain() []*StreamSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*StreamSession, 0, len(r.down)+1)
	if r.up != nil {
		out = append(out, r.up)
		r.up = nil
	}
	for id, s := range r.down {
		out = append(out, s)
		delete(r.down, id)
	}
	return out
}
