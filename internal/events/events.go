package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is emitted on every terminal or partial-fill transition. Delivery is
// at-least-once; consumers de-duplicate by EventID, which is deterministic
// over (kind, order id, status, occurrence).
type Event struct {
	EventID    string    `json:"event_id"`
	OrderKind  string    `json:"order_kind"`
	OrderID    uint64    `json:"order_id"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Occurrence string    `json:"occurrence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

var eventNamespace = uuid.MustParse("7d4a1f6e-9c3b-4a8f-b21d-5e0c6a7f8e91")

// DeterministicEventID derives a stable ID so a replayed transition produces
// the same event identity on every worker.
func DeterministicEventID(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(eventNamespace, []byte(joined)).String()
}

func New(orderKind string, orderID uint64, status, txHash, occurrence string) Event {
	return Event{
		EventID:    DeterministicEventID(orderKind, strconv.FormatUint(orderID, 10), status, occurrence),
		OrderKind:  orderKind,
		OrderID:    orderID,
		Status:     status,
		TxHash:     txHash,
		Occurrence: occurrence,
		Timestamp:  time.Now().UTC(),
	}
}

// Publisher fans transitions out to downstream consumers (notification and
// streaming layers). Implementations must tolerate being called from
// concurrent scheduler workers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop drops events; used when the broker is disabled.
type Nop struct{}

func (Nop) Publish(ctx context.Context, event Event) error { return nil }
func (Nop) Close() error                                   { return nil }
