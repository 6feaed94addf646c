package visindex

import "context"

// DefaultBatchSize bounds how many positions are scanned between context
// checks during a range operation.
const DefaultBatchSize = 50

// Update records a single visibility flip produced by a range scan.
type Update struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	Hidden   bool   `json:"is_hidden"`
}

// Updates is an ordered list of flips; order follows the position scan.
type Updates []Update

// ByID returns the updates keyed by message identifier. Within one range
// scan each identifier appears at most once.
func (u Updates) ByID() map[string]Update {
	m := make(map[string]Update, len(u))
	for _, upd := range u {
		m[upd.ID] = upd
	}
	return m
}

// ProcessRange scans positions start..end inclusive and flips every message
// that is not already in the requested state: with unhide true only messages
// currently hidden are touched, with unhide false only messages currently
// visible. Identifiers the index does not know are skipped; it is the
// caller's job to rebuild after structural changes to the sequence.
//
// Bounds must already be normalized (see NormalizeRange). The scan runs in
// batches of batchSize positions and checks ctx between batches, so a
// cancelled context aborts with ctx.Err(); batching never changes the
// result, only how often the scan yields.
func ProcessRange(ctx context.Context, messages []Message, idx *Index, start, end int, unhide bool, batchSize int) (Updates, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var updates Updates
	for batchStart := start; batchStart <= end; batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchEnd := batchStart + batchSize - 1
		if batchEnd > end {
			batchEnd = end
		}
		for pos := batchStart; pos <= batchEnd; pos++ {
			if pos >= len(messages) {
				break
			}
			id := MessageID(messages[pos], pos)

			var shouldUpdate bool
			if unhide {
				shouldUpdate = idx.IsHidden(id)
			} else {
				shouldUpdate = idx.IsVisible(id)
			}
			if !shouldUpdate {
				continue
			}

			hidden := !unhide
			idx.SetHidden(id, hidden)
			updates = append(updates, Update{
				ID:       id,
				Position: pos,
				Hidden:   hidden,
			})
		}
	}
	return updates, nil
}
