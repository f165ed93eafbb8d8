package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aero123421/RSS7/internal/model"
)

// Entry is a message waiting in the outbox for an external front-end.
type Entry struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	Message   *model.Message `json:"message,omitempty"`
	Text      string         `json:"text,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Outbox is a Publisher that keeps messages in memory until a front-end
// collects them with Next. Message ids are random UUIDs; the front-end
// re-associates them with its own ids through the admin API.
type Outbox struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewOutbox returns an outbox holding at most limit entries (0 means no
// limit). When full the oldest entry is dropped.
func NewOutbox(limit int) *Outbox {
	return &Outbox{limit: limit}
}

// Publish queues msg and returns its outbox id.
func (o *Outbox) Publish(_ context.Context, channelID string, msg model.Message) (string, error) {
	id := uuid.NewString()
	o.push(Entry{ID: id, ChannelID: channelID, Message: &msg, CreatedAt: time.Now().UTC()})
	return id, nil
}

// SendPlain queues a text notice.
func (o *Outbox) SendPlain(_ context.Context, channelID, text string) error {
	o.push(Entry{ID: uuid.NewString(), ChannelID: channelID, Text: text, CreatedAt: time.Now().UTC()})
	return nil
}

func (o *Outbox) push(e Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, e)
	if o.limit > 0 && len(o.entries) > o.limit {
		o.entries = o.entries[len(o.entries)-o.limit:]
	}
}

// Next removes and returns the oldest entry.
func (o *Outbox) Next() (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) == 0 {
		return Entry{}, false
	}
	e := o.entries[0]
	o.entries = o.entries[1:]
	return e, true
}

// Len returns the number of waiting entries.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
