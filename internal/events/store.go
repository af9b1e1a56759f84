package events

import (
	"context"
	"log/slog"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

// Store wraps a store.Store and publishes an event after every mutation
// that changed something. Publish failures are logged and never fail the
// operation. Reads pass straight through.
type Store struct {
	store.Store
	publisher Publisher
	logger    *slog.Logger
}

var _ store.Store = (*Store)(nil)

func NewStore(s store.Store, publisher Publisher, logger *slog.Logger) *Store {
	if publisher == nil {
		publisher = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Store: s, publisher: publisher, logger: logger}
}

func (s *Store) publish(ctx context.Context, topic string, event any, attrs ...any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", append([]any{"topic", topic, "error", err}, attrs...)...)
	}
}

func (s *Store) Put(ctx context.Context, namespace, typ, key string, doc model.Document) error {
	if err := s.Store.Put(ctx, namespace, typ, key, doc); err != nil {
		return err
	}
	s.publish(ctx, TopicDocumentPut, DocumentPut{Namespace: namespace, Type: typ, Key: key, Value: doc},
		"ref", model.Ref{Namespace: namespace, Type: typ, Key: key}.String())
	return nil
}

func (s *Store) Restore(ctx context.Context, rec *model.Record) error {
	if err := s.Store.Restore(ctx, rec); err != nil {
		return err
	}
	s.publish(ctx, TopicDocumentPut, DocumentPut{
		Namespace: rec.Namespace,
		Type:      rec.Type,
		Key:       rec.Key,
		Value:     rec.Value,
		Restored:  true,
	}, "ref", rec.Ref().String())
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, typ, key string) (bool, error) {
	deleted, err := s.Store.Delete(ctx, namespace, typ, key)
	if err != nil || !deleted {
		return deleted, err
	}
	s.publish(ctx, TopicDocumentDeleted, DocumentDeleted{Namespace: namespace, Type: typ, Key: key},
		"ref", model.Ref{Namespace: namespace, Type: typ, Key: key}.String())
	return true, nil
}

func (s *Store) DropType(ctx context.Context, namespace, typ string) (bool, error) {
	dropped, err := s.Store.DropType(ctx, namespace, typ)
	if err != nil || !dropped {
		return dropped, err
	}
	s.publish(ctx, TopicTypeDropped, TypeDropped{Namespace: namespace, Type: typ},
		"namespace", namespace, "type", typ)
	return true, nil
}

func (s *Store) DropNamespace(ctx context.Context, namespace string) (bool, error) {
	dropped, err := s.Store.DropNamespace(ctx, namespace)
	if err != nil || !dropped {
		return dropped, err
	}
	s.publish(ctx, TopicNamespaceDropped, NamespaceDropped{Namespace: namespace}, "namespace", namespace)
	return true, nil
}

// Close closes the wrapped store and then the publisher.
func (s *Store) Close() error {
	err := s.Store.Close()
	if perr := s.publisher.Close(); err == nil {
		err = perr
	}
	return err
}
