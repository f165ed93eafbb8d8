package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/Aero123421/RSS7/internal/logging"
	"github.com/Aero123421/RSS7/internal/model"
)

type memStore struct {
	snaps    map[string]model.Snapshot
	gotLimit int
	gotKeys  []string
}

func (m *memStore) GetSnapshot(_ context.Context, id string) (*model.Snapshot, bool) {
	s, ok := m.snaps[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (m *memStore) FindRelated(_ context.Context, kws []string, exclude string, limit int) []model.Snapshot {
	m.gotKeys, m.gotLimit = kws, limit
	var out []model.Snapshot
	for id, s := range m.snaps {
		if id != exclude {
			out = append(out, s)
		}
	}
	return out
}

type stubResponder struct {
	keywords []string
	answer   string
	err      error
	related  []model.Snapshot
}

func (r *stubResponder) SearchKeywords(context.Context, model.Snapshot, string) []string {
	return r.keywords
}

func (r *stubResponder) Answer(_ context.Context, _ model.Snapshot, related []model.Snapshot, _ string) (string, error) {
	r.related = related
	return r.answer, r.err
}

func newStore() *memStore {
	return &memStore{snaps: map[string]model.Snapshot{
		"m1": {MessageID: "m1", Title: "Main"},
		"m2": {MessageID: "m2", Title: "Other"},
	}}
}

func TestAnswer(t *testing.T) {
	store := newStore()
	resp := &stubResponder{keywords: []string{"go"}, answer: " 答えです "}
	a := NewAnswerer(store, resp, logging.Discard())

	got, err := a.Answer(context.Background(), "m1", "なに？")
	if err != nil || got != "答えです" {
		t.Fatalf("Answer = %q, %v", got, err)
	}
	if store.gotLimit != RelatedLimit {
		t.Errorf("related limit = %d", store.gotLimit)
	}
	if len(resp.related) != 1 || resp.related[0].MessageID != "m2" {
		t.Errorf("related = %+v", resp.related)
	}
}

func TestAnswerUnknownMessage(t *testing.T) {
	a := NewAnswerer(newStore(), &stubResponder{}, logging.Discard())
	if _, err := a.Answer(context.Background(), "missing", "q"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnswerFailureApologizes(t *testing.T) {
	store := newStore()
	a := NewAnswerer(store, &stubResponder{err: errors.New("quota")}, logging.Discard())
	got, err := a.Answer(context.Background(), "m1", "q")
	if err != nil || got != Apology {
		t.Fatalf("Answer = %q, %v", got, err)
	}
	// No keywords means no related lookup.
	if store.gotKeys != nil {
		t.Errorf("FindRelated called with %v", store.gotKeys)
	}
}
