package bot

import "sync"

// ChatRegistry tracks which chats have a turn in flight. The underlying
// agent thread is not safe for concurrent turns, so a chat gets at most one:
// a second instruction is rejected immediately rather than queued.
type ChatRegistry struct {
	mu   sync.Mutex
	busy map[int64]bool
}

func NewChatRegistry() *ChatRegistry {
	return &ChatRegistry{busy: make(map[int64]bool)}
}

// TryAcquire marks the chat busy. It returns false when a turn is already in
// flight for it.
func (r *ChatRegistry) TryAcquire(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[chatID] {
		return false
	}
	r.busy[chatID] = true
	return true
}

// Release marks the chat idle again.
func (r *ChatRegistry) Release(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.busy, chatID)
}
