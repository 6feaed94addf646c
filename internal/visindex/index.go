package visindex

import (
	"time"
)

// Index is the visibility partition over message identifiers. An identifier
// known to the index is in exactly one of the hidden or visible sets; the
// system set tags build-time provenance and is independent of the current
// hidden/visible state.
//
// Index is not safe for concurrent mutation. It is owned by exactly one
// goroutine at a time; ownership transfers across the worker boundary by
// structural copy, never by reference.
type Index struct {
	hidden     map[string]struct{}
	visible    map[string]struct{}
	system     map[string]struct{}
	positions  map[string]int
	lastUpdate time.Time
}

// MessageState is the result of a point lookup. Known is false when the
// identifier was not covered by the last build, in which case Position is
// meaningless.
type MessageState struct {
	Hidden   bool
	Visible  bool
	System   bool
	Position int
	Known    bool
}

// Stats summarises the current partition.
type Stats struct {
	Total      int       `json:"total_messages"`
	Hidden     int       `json:"hidden_count"`
	Visible    int       `json:"visible_count"`
	System     int       `json:"system_count"`
	LastUpdate time.Time `json:"last_update"`
}

// Build scans the message sequence once, in order, and produces a fresh
// Index. System-authored messages start hidden and are tagged as
// system-origin; everything else starts visible. Deterministic: the same
// sequence always yields the same partition.
func Build(messages []Message) *Index {
	idx := &Index{
		hidden:     make(map[string]struct{}),
		visible:    make(map[string]struct{}, len(messages)),
		system:     make(map[string]struct{}),
		positions:  make(map[string]int, len(messages)),
		lastUpdate: time.Now(),
	}
	for pos, msg := range messages {
		id := MessageID(msg, pos)
		idx.positions[id] = pos
		if msg.System {
			idx.hidden[id] = struct{}{}
			idx.system[id] = struct{}{}
		} else {
			idx.visible[id] = struct{}{}
		}
	}
	return idx
}

// State returns the current visibility state of id without mutating anything.
func (idx *Index) State(id string) MessageState {
	pos, known := idx.positions[id]
	_, hidden := idx.hidden[id]
	_, visible := idx.visible[id]
	_, system := idx.system[id]
	return MessageState{
		Hidden:   hidden,
		Visible:  visible,
		System:   system,
		Position: pos,
		Known:    known,
	}
}

// SetHidden moves id into the hidden or visible set. Re-applying the current
// state is a no-op in effect, though it still refreshes LastUpdate.
func (idx *Index) SetHidden(id string, hidden bool) {
	if hidden {
		delete(idx.visible, id)
		idx.hidden[id] = struct{}{}
	} else {
		delete(idx.hidden, id)
		idx.visible[id] = struct{}{}
	}
	idx.lastUpdate = time.Now()
}

// IsHidden reports whether id is currently in the hidden set.
func (idx *Index) IsHidden(id string) bool {
	_, ok := idx.hidden[id]
	return ok
}

// IsVisible reports whether id is currently in the visible set.
func (idx *Index) IsVisible(id string) bool {
	_, ok := idx.visible[id]
	return ok
}

// IsSystem reports whether id was system-authored at build time.
func (idx *Index) IsSystem(id string) bool {
	_, ok := idx.system[id]
	return ok
}

// Position returns the position id held at the last build.
func (idx *Index) Position(id string) (int, bool) {
	pos, ok := idx.positions[id]
	return pos, ok
}

// LastUpdate returns the time of the last build or mutation.
func (idx *Index) LastUpdate() time.Time {
	return idx.lastUpdate
}

// Stats returns the aggregate counts for the current partition.
func (idx *Index) Stats() Stats {
	return Stats{
		Total:      len(idx.positions),
		Hidden:     len(idx.hidden),
		Visible:    len(idx.visible),
		System:     len(idx.system),
		LastUpdate: idx.lastUpdate,
	}
}

// Snapshot is the structural-copy form of an Index, used to carry it across
// the worker message-passing boundary and to expose it for inspection.
type Snapshot struct {
	Hidden     []string       `json:"hidden"`
	Visible    []string       `json:"visible"`
	System     []string       `json:"system"`
	Positions  map[string]int `json:"positions"`
	LastUpdate time.Time      `json:"last_update"`
}

// Snapshot copies the index into its transferable form.
func (idx *Index) Snapshot() Snapshot {
	s := Snapshot{
		Hidden:     make([]string, 0, len(idx.hidden)),
		Visible:    make([]string, 0, len(idx.visible)),
		System:     make([]string, 0, len(idx.system)),
		Positions:  make(map[string]int, len(idx.positions)),
		LastUpdate: idx.lastUpdate,
	}
	for id := range idx.hidden {
		s.Hidden = append(s.Hidden, id)
	}
	for id := range idx.visible {
		s.Visible = append(s.Visible, id)
	}
	for id := range idx.system {
		s.System = append(s.System, id)
	}
	for id, pos := range idx.positions {
		s.Positions[id] = pos
	}
	return s
}

// FromSnapshot reconstructs an Index from its transferable form.
func FromSnapshot(s Snapshot) *Index {
	idx := &Index{
		hidden:     make(map[string]struct{}, len(s.Hidden)),
		visible:    make(map[string]struct{}, len(s.Visible)),
		system:     make(map[string]struct{}, len(s.System)),
		positions:  make(map[string]int, len(s.Positions)),
		lastUpdate: s.LastUpdate,
	}
	for _, id := range s.Hidden {
		idx.hidden[id] = struct{}{}
	}
	for _, id := range s.Visible {
		idx.visible[id] = struct{}{}
	}
	for _, id := range s.System {
		idx.system[id] = struct{}{}
	}
	for id, pos := range s.Positions {
		idx.positions[id] = pos
	}
	return idx
}
