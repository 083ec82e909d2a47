// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// DefaultHistoryWindow is the number of turns RecentHistory callers use when
// they have no better value.
const DefaultHistoryWindow = 10

// StateStore is the in-memory registry of conversation state.
//
// # Description
//
// Conversations are created lazily, mutated by every routed message and
// removed only by Sweep. Unknown ids are never an error: reads return "no
// state" and writes are silent no-ops.
//
// # Thread Safety
//
// The map itself is guarded by an RWMutex held only for lookups and
// inserts/deletes. Each conversation carries its own mutex, so appending to
// one conversation never blocks reads or writes of another.
//
// # Limitations
//
//   - Process-lifetime memory only; nothing survives a restart.
type StateStore struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]*stateEntry
}

// stateEntry is one conversation plus its private lock.
type stateEntry struct {
	mu      sync.Mutex
	state   datatypes.ConversationState
	removed bool // set by Sweep; a removed entry behaves as unknown
}

// NewStateStore creates an empty store using clk for timestamps.
func NewStateStore(clk clock.Clock) *StateStore {
	return &StateStore{
		clock:   clk,
		entries: make(map[string]*stateEntry),
	}
}

// GetOrCreate returns the state for id, creating it if needed.
//
// # Description
//
// Idempotent: an existing conversation is returned untouched, including its
// history and context; initial is only used on creation.
//
// # Inputs
//
//   - id: Conversation id.
//   - initial: Context for a newly created conversation. May be nil.
//
// # Outputs
//
//   - datatypes.ConversationState: Snapshot of the conversation.
func (s *StateStore) GetOrCreate(id string, initial *datatypes.Context) datatypes.ConversationState {
	if e := s.lookup(id); e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.removed {
			return e.state.Clone()
		}
	}

	now := s.clock.Now()
	fresh := &stateEntry{
		state: datatypes.ConversationState{
			ConversationID: id,
			MessageHistory: []datatypes.Turn{},
			Metadata: datatypes.Metadata{
				StartTime:    now,
				LastActivity: now,
			},
		},
	}
	if initial != nil {
		fresh.state.Context = *initial
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.isRemoved() {
		s.entries[id] = fresh
		e = fresh
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Get returns a snapshot of the state for id.
//
// # Outputs
//
//   - datatypes.ConversationState: Snapshot (zero value if unknown).
//   - bool: False when id is unknown.
func (s *StateStore) Get(id string) (datatypes.ConversationState, bool) {
	e := s.lookup(id)
	if e == nil {
		return datatypes.ConversationState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return datatypes.ConversationState{}, false
	}
	return e.state.Clone(), true
}

// AppendMessage appends a turn and refreshes the activity metadata.
//
// Unknown ids are ignored and no entry is created as a side effect.
func (s *StateStore) AppendMessage(id string, role datatypes.Role, content string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	now := s.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}
	e.state.MessageHistory = append(e.state.MessageHistory, datatypes.Turn{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	e.state.Metadata.LastActivity = now
	e.state.Metadata.MessageCount++
}

// MergeContext overlays the populated fields of partial onto the stored
// context. Empty fields never clear stored values. Unknown ids are ignored.
func (s *StateStore) MergeContext(id string, partial datatypes.Context) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}
	e.state.Context = e.state.Context.Merge(partial)
}

// RecentHistory returns the last n turns as "role: content" lines in
// chronological order. Unknown ids and n <= 0 yield "".
func (s *StateStore) RecentHistory(id string, n int) string {
	if n <= 0 {
		return ""
	}
	state, ok := s.Get(id)
	if !ok {
		return ""
	}

	turns := state.MessageHistory
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}

// Len returns the number of live conversations.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes every conversation whose last activity is older than maxAge.
//
// # Description
//
// Candidates are collected from a snapshot of the map, so the map lock is
// never held while scanning. Each candidate is re-checked under its own lock
// before deletion; a conversation that saw activity in the meantime stays.
//
// # Outputs
//
//   - int: Number of conversations removed.
func (s *StateStore) Sweep(maxAge time.Duration) int {
	cutoff := s.clock.Now().Add(-maxAge)

	s.mu.RLock()
	snapshot := make(map[string]*stateEntry, len(s.entries))
	for id, e := range s.entries {
		snapshot[id] = e
	}
	s.mu.RUnlock()

	var stale []string
	for id, e := range snapshot {
		if e.idleSince(cutoff) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range stale {
		e, ok := s.entries[id]
		if !ok || e != snapshot[id] {
			continue
		}
		e.mu.Lock()
		if e.state.Metadata.LastActivity.Before(cutoff) {
			e.removed = true
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

func (s *StateStore) lookup(id string) *stateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (e *stateEntry) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Metadata.LastActivity.Before(cutoff)
}

func (e *stateEntry) isRemoved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

var _ Sweeper = (*StateStore)(nil)
