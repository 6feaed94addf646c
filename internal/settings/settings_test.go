package settings

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/chatstream/visibility/pkg/redis"
)

// fakeKV is an in-memory stand-in for the Redis client.
type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.data[key] = string(value.([]byte))
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func newTestStore() (*Store, *fakeKV) {
	kv := newFakeKV()
	return &Store{client: kv, logger: slog.Default()}, kv
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults fail validation: %v", err)
	}
}

func TestStoreLoadDefaultsWhenEmpty(t *testing.T) {
	store, _ := newTestStore()
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	want := Settings{
		IndexingEnabled: true,
		BatchSize:       25,
		Policy:          PolicyKeepTail,
		KeepVisibleTail: 10,
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestStoreSaveRejectsInvalid(t *testing.T) {
	store, kv := newTestStore()
	bad := Default()
	bad.Policy = "purge-all"
	if err := store.Save(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if len(kv.data) != 0 {
		t.Fatal("invalid settings were persisted")
	}
}

func TestStoreLoadCorruptFallsBack(t *testing.T) {
	store, kv := newTestStore()
	kv.data[storeKey] = "{not json"
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults for corrupt data", cfg)
	}
}

func TestStoreResetRestoresDefaults(t *testing.T) {
	store, _ := newTestStore()
	tuned := Default()
	tuned.BatchSize = 7
	if err := store.Save(context.Background(), tuned); err != nil {
		t.Fatal(err)
	}

	if err := store.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults after reset", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, false},
		{"keep-tail policy", func(s *Settings) { s.Policy = PolicyKeepTail; s.KeepVisibleTail = 10 }, false},
		{"zero batch size", func(s *Settings) { s.BatchSize = 0 }, true},
		{"oversized batch", func(s *Settings) { s.BatchSize = 10001 }, true},
		{"unknown policy", func(s *Settings) { s.Policy = "purge-all" }, true},
		{"empty policy", func(s *Settings) { s.Policy = "" }, true},
		{"negative tail", func(s *Settings) { s.KeepVisibleTail = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
