package events

import (
	"context"

	"github.com/nfinity/nfindb/internal/model"
)

// Topics, used verbatim as NATS subjects.
const (
	TopicDocumentPut      = "nfindb.document.put"
	TopicDocumentDeleted  = "nfindb.document.deleted"
	TopicTypeDropped      = "nfindb.type.dropped"
	TopicNamespaceDropped = "nfindb.namespace.dropped"

	// TopicAll matches every topic above.
	TopicAll = "nfindb.>"
)

type DocumentPut struct {
	Namespace string         `json:"namespace"`
	Type      string         `json:"type"`
	Key       string         `json:"key"`
	Value     model.Document `json:"value"`
	Restored  bool           `json:"restored,omitempty"` // written from a backup
}

type DocumentDeleted struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Key       string `json:"key"`
}

type TypeDropped struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
}

type NamespaceDropped struct {
	Namespace string `json:"namespace"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// The returned cancel function unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, any) error { return nil }
func (discard) Close() error { return nil }
