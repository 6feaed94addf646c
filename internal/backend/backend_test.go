package backend

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/config"
	apperrors "github.com/chatstream/visibility/pkg/errors"
)

func testMessages(n int) []visindex.Message {
	msgs := make([]visindex.Message, n)
	for i := range msgs {
		msgs[i] = visindex.Message{ID: "m" + string(rune('a'+i))}
	}
	return msgs
}

func TestLocalBuildIndex(t *testing.T) {
	b := NewLocal(nil)
	msgs := []visindex.Message{{ID: "a"}, {ID: "b", System: true}, {ID: "c"}}

	idx, err := BuildIndex(context.Background(), b, msgs)
	if err != nil {
		t.Fatal(err)
	}
	stats := idx.Stats()
	if stats.Total != 3 || stats.Hidden != 1 || stats.Visible != 2 || stats.System != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLocalProcessRange(t *testing.T) {
	b := NewLocal(nil)
	msgs := testMessages(5)
	idx, err := BuildIndex(context.Background(), b, msgs)
	if err != nil {
		t.Fatal(err)
	}

	updates, idx, err := ProcessRange(context.Background(), b, RangeRequest{
		Messages: msgs,
		Index:    idx.Snapshot(),
		Start:    1,
		End:      3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
	if idx.Stats().Hidden != 3 {
		t.Fatalf("hidden = %d, want 3", idx.Stats().Hidden)
	}
}

func TestLocalProcessRangeEmptyUpdates(t *testing.T) {
	b := NewLocal(nil)
	msgs := testMessages(3)
	idx, err := BuildIndex(context.Background(), b, msgs)
	if err != nil {
		t.Fatal(err)
	}

	// Everything is already visible, so unhiding flips nothing.
	updates, _, err := ProcessRange(context.Background(), b, RangeRequest{
		Messages: msgs,
		Index:    idx.Snapshot(),
		Start:    0,
		End:      2,
		Unhide:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updates == nil || len(updates) != 0 {
		t.Fatalf("updates = %#v, want empty non-nil slice", updates)
	}
}

func TestLocalUnsupportedAction(t *testing.T) {
	b := NewLocal(nil)
	_, err := b.Execute(context.Background(), Action("compactIndex"), []byte(`{}`))
	if !errors.Is(err, apperrors.ErrUnsupportedAction) {
		t.Fatalf("err = %v, want ErrUnsupportedAction", err)
	}
}

func TestLocalDoesNotMutateRequestIndex(t *testing.T) {
	b := NewLocal(nil)
	msgs := testMessages(4)
	idx, err := BuildIndex(context.Background(), b, msgs)
	if err != nil {
		t.Fatal(err)
	}
	before := idx.Stats()

	snap := idx.Snapshot()
	if _, _, err := ProcessRange(context.Background(), b, RangeRequest{
		Messages: msgs,
		Index:    snap,
		Start:    0,
		End:      3,
	}); err != nil {
		t.Fatal(err)
	}
	if after := idx.Stats(); after.Hidden != before.Hidden {
		t.Fatalf("caller index mutated: before=%+v after=%+v", before, after)
	}
}

func TestWorkerAndLocalAgree(t *testing.T) {
	local := NewLocal(nil)
	worker := NewWorker(config.IndexingConfig{UseWorker: true}, nil)
	defer worker.Close()

	msgs := []visindex.Message{
		{ID: "a"}, {ID: "b", System: true}, {ID: "c"}, {ID: "d"}, {ID: "e"},
	}

	localIdx, err := BuildIndex(context.Background(), local, msgs)
	if err != nil {
		t.Fatal(err)
	}
	workerIdx, err := BuildIndex(context.Background(), worker, msgs)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(localIdx.Stats(), workerIdx.Stats()) {
		t.Fatalf("build stats differ: local=%+v worker=%+v", localIdx.Stats(), workerIdx.Stats())
	}

	req := RangeRequest{Messages: msgs, Start: 1, End: 4}
	req.Index = localIdx.Snapshot()
	localUpd, localIdx, err := ProcessRange(context.Background(), local, req)
	if err != nil {
		t.Fatal(err)
	}
	req.Index = workerIdx.Snapshot()
	workerUpd, workerIdx, err := ProcessRange(context.Background(), worker, req)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(localUpd, workerUpd) {
		t.Fatalf("updates differ: local=%+v worker=%+v", localUpd, workerUpd)
	}
	if !reflect.DeepEqual(localIdx.Stats(), workerIdx.Stats()) {
		t.Fatalf("range stats differ: local=%+v worker=%+v", localIdx.Stats(), workerIdx.Stats())
	}
}

func TestNewSelectsStrategy(t *testing.T) {
	b := New(config.IndexingConfig{UseWorker: false}, nil)
	if _, ok := b.(*Local); !ok {
		t.Fatalf("got %T, want *Local", b)
	}

	b = New(config.IndexingConfig{UseWorker: true}, nil)
	w, ok := b.(*Worker)
	if !ok {
		t.Fatalf("got %T, want *Worker", b)
	}
	w.Close()
}
