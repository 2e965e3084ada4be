package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"dentalink/internal/domain/repository"
)

// TypingTracker maintains the per-room typing flags. The flag is a UI hint
// with no delivery guarantee: a flag stranded by a closed tab self-heals on
// the next write from any participant.
type TypingTracker struct {
	chatRepo repository.ChatRepository
	ttl      time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTypingTracker(chatRepo repository.ChatRepository, ttl time.Duration) *TypingTracker {
	return &TypingTracker{
		chatRepo: chatRepo,
		ttl:      ttl,
		timers:   make(map[string]*time.Timer),
	}
}

// NotifyTyping raises the actor's typing flag and (re)schedules the drop
// after the TTL. Another keystroke before expiry resets the timer. A
// provisional target has no room record to write to, so an empty roomID is
// a no-op.
func (t *TypingTracker) NotifyTyping(ctx context.Context, actor, roomID string) error {
	if roomID == "" {
		return nil
	}

	if err := t.chatRepo.SetTyping(ctx, roomID, actor, true); err != nil {
		return err
	}

	key := roomID + "/" + actor

	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expire(actor, roomID)
	})
	t.mu.Unlock()

	return nil
}

// StopTyping drops the actor's typing flag immediately, e.g. after a send.
func (t *TypingTracker) StopTyping(ctx context.Context, actor, roomID string) error {
	if roomID == "" {
		return nil
	}

	t.mu.Lock()
	key := roomID + "/" + actor
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	return t.chatRepo.SetTyping(ctx, roomID, actor, false)
}

func (t *TypingTracker) expire(actor, roomID string) {
	t.mu.Lock()
	delete(t.timers, roomID+"/"+actor)
	t.mu.Unlock()

	if err := t.chatRepo.SetTyping(context.Background(), roomID, actor, false); err != nil {
		log.Printf("Typing Warning: Failed to clear expired typing flag for %s in room %s: %v", actor, roomID, err)
	}
}

// Stop cancels all pending expiry timers.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
