package repository

import (
	"context"
	"log"
	"sync"

	"cloud.google.com/go/firestore"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
)

// firestoreMessageStream adapts a Firestore snapshot listener into the
// repository stream contract. Close cancels the listener; after a listener
// failure the change channel is closed and Err reports the cause without
// affecting any sibling stream.
type firestoreMessageStream struct {
	changes chan repository.MessageChange
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

func newMessageStream(ctx context.Context, query firestore.Query, roomID string) *firestoreMessageStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &firestoreMessageStream{
		changes: make(chan repository.MessageChange, 32),
		cancel:  cancel,
	}

	go func() {
		defer close(s.changes)

		iter := query.Snapshots(ctx)
		defer iter.Stop()

		initial := true
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Message stream for room %s stopped: %v", roomID, err)
					s.setErr(err)
				}
				return
			}

			for _, change := range snap.Changes {
				var message entity.Message
				if err := change.Doc.DataTo(&message); err != nil {
					log.Printf("Error parsing message change for room %s: %v", roomID, err)
					continue
				}
				message.ID = change.Doc.Ref.ID

				select {
				case s.changes <- repository.MessageChange{
					Kind:    changeKind(change.Kind),
					Initial: initial,
					Message: &message,
				}:
				case <-ctx.Done():
					return
				}
			}
			initial = false
		}
	}()

	return s
}

func (s *firestoreMessageStream) Changes() <-chan repository.MessageChange {
	return s.changes
}

func (s *firestoreMessageStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *firestoreMessageStream) Close() {
	s.cancel()
}

func (s *firestoreMessageStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type firestoreRoomStream struct {
	changes chan repository.RoomChange
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

func newRoomStream(ctx context.Context, query firestore.Query, identity string) *firestoreRoomStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &firestoreRoomStream{
		changes: make(chan repository.RoomChange, 16),
		cancel:  cancel,
	}

	go func() {
		defer close(s.changes)

		iter := query.Snapshots(ctx)
		defer iter.Stop()

		initial := true
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Room stream for %s stopped: %v", identity, err)
					s.setErr(err)
				}
				return
			}

			for _, change := range snap.Changes {
				var room entity.Room
				if err := change.Doc.DataTo(&room); err != nil {
					log.Printf("Error parsing room change for %s: %v", identity, err)
					continue
				}
				room.ID = change.Doc.Ref.ID

				select {
				case s.changes <- repository.RoomChange{
					Kind:    changeKind(change.Kind),
					Initial: initial,
					Room:    &room,
				}:
				case <-ctx.Done():
					return
				}
			}
			initial = false
		}
	}()

	return s
}

func (s *firestoreRoomStream) Changes() <-chan repository.RoomChange {
	return s.changes
}

func (s *firestoreRoomStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *firestoreRoomStream) Close() {
	s.cancel()
}

func (s *firestoreRoomStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func changeKind(kind firestore.DocumentChangeKind) repository.ChangeKind {
	switch kind {
	case firestore.DocumentAdded:
		return repository.ChangeAdded
	case firestore.DocumentModified:
		return repository.ChangeModified
	default:
		return repository.ChangeRemoved
	}
}
