// Package visindex maintains the visibility partition over an ordered chat
// message sequence: which message identifiers are hidden, which are visible,
// which were system-authored at build time, and where each identifier sat in
// the sequence when the index was last built.
//
// Everything in this package is pure, single-owner logic. The same functions
// back both the synchronous execution path and the background worker, so the
// two can never drift apart.
package visindex

import "strconv"

// Message is the read-only view of a host chat message that the index cares
// about. An empty ID means the message has no explicit identifier and falls
// back to its position in the sequence.
type Message struct {
	ID     string `json:"id,omitempty"`
	System bool   `json:"is_system"`
}

// MessageID resolves the effective identifier of msg at position pos.
func MessageID(msg Message, pos int) string {
	if msg.ID != "" {
		return msg.ID
	}
	return strconv.Itoa(pos)
}

// NormalizeRange clamps start and end into [0, length-1] and swaps them if
// they arrive inverted. The returned ok is false when the sequence is empty,
// in which case no range can be scanned.
func NormalizeRange(start, end, length int) (int, int, bool) {
	if length <= 0 {
		return 0, 0, false
	}
	start = clamp(start, 0, length-1)
	end = clamp(end, 0, length-1)
	if start > end {
		start, end = end, start
	}
	return start, end, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
