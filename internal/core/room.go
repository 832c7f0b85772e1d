package core

import (
	"sort"
	"sync"

	"github.com/rmendes/huddle/internal/domain"
)

// RoomState is a threadsafe in-memory view of the joined group: the
// participant roster and the chat log. Mutated only by the session
// manager; everyone else gets snapshots.
type RoomState struct {
	mu     sync.RWMutex
	roster map[domain.UserID]domain.Participant
	chat   []domain.ChatEntry
}

func NewRoomState() *RoomState {
	return &RoomState{roster: make(map[domain.UserID]domain.Participant)}
}

// Upsert adds or overwrites a roster entry. Duplicate joins for the
// same id are overwrites, never duplicates.
func (r *RoomState) Upsert(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster[p.ID] = p
}

func (r *RoomState) Remove(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roster, id)
}

func (r *RoomState) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roster)
}

// Participants returns a snapshot of the roster, ordered by id for
// stable presentation.
func (r *RoomState) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendChat appends to the chat log. History only grows for the
// lifetime of the connection.
func (r *RoomState) AppendChat(e domain.ChatEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat = append(r.chat, e)
}

func (r *RoomState) Messages() []domain.ChatEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChatEntry, len(r.chat))
	copy(out, r.chat)
	return out
}

// Reset drops roster and chat. Called when the connection is rebuilt;
// the server replays presence and history after a fresh join.
func (r *RoomState) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = make(map[domain.UserID]domain.Participant)
	r.chat = nil
}
