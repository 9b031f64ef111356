// Package notify defines the Notification value type and the closed set
// of categories ExEngine publishes.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of notification categories.
type Category string

const (
	CategoryEvent   Category = "Event"
	CategoryData    Category = "Data"
	CategoryStorage Category = "Storage"
	CategoryDevice  Category = "Device"
)

// Built-in notification kinds the core emits.
const (
	KindEventExecuted = "EventExecuted"
	KindDataStored    = "DataStored"
	KindStorageFailed = "StorageFailed"
)

// Notification is an immutable broadcast message.
type Notification struct {
	id          uuid.UUID
	category    Category
	kind        string
	description string
	payload     any
	createdAt   time.Time
}

// New constructs a Notification. createdAt is stamped at call time.
func New(category Category, kind, description string, payload any) Notification {
	return Notification{
		id:          uuid.New(),
		category:    category,
		kind:        kind,
		description: description,
		payload:     payload,
		createdAt:   time.Now(),
	}
}

func (n Notification) ID() uuid.UUID        { return n.id }
func (n Notification) Category() Category   { return n.category }
func (n Notification) Kind() string         { return n.kind }
func (n Notification) Description() string  { return n.description }
func (n Notification) Payload() any         { return n.payload }
func (n Notification) CreatedAt() time.Time { return n.createdAt }

// WireFormat is the observability export shape:
// {timestamp_ns, category, kind, description, payload}.
type WireFormat struct {
	TimestampNS uint64 `json:"timestamp_ns"`
	Category    string `json:"category"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Payload     any    `json:"payload"`
}

// ToWire converts a Notification to its wire representation.
func (n Notification) ToWire() WireFormat {
	return WireFormat{
		TimestampNS: uint64(n.createdAt.UnixNano()),
		Category:    string(n.category),
		Kind:        n.kind,
		Description: n.description,
		Payload:     n.payload,
	}
}

// MarshalJSON emits the wire format directly, so a Notification dropped
// into an encoder produces the wire JSON shape without an extra hop.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToWire())
}

// EventExecuted builds the terminal per-work-item notification. payload
// carries the failure error's message, or nil on success.
func EventExecuted(err error) Notification {
	desc := "event executed"
	var payload any
	if err != nil {
		desc = "event execution failed"
		payload = err.Error()
	}
	return New(CategoryEvent, KindEventExecuted, desc, payload)
}

// DataStored builds the notification published when the data handler's
// storage writer confirms persistence of a coordinate.
func DataStored(coordsKey string) Notification {
	return New(CategoryData, KindDataStored, "data item stored", coordsKey)
}

// StorageFailed builds the notification published when a storage put
// fails.
func StorageFailed(coordsKey string, err error) Notification {
	return New(CategoryStorage, KindStorageFailed, "storage put failed", map[string]any{
		"coords": coordsKey,
		"error":  err.Error(),
	})
}
