package reply

import (
	"container/list"
	"sync"
)

// DefaultMemoSize bounds the number of (npc, quest, user) entries kept.
const DefaultMemoSize = 10000

type memoKey struct {
	npc   string
	quest string
	user  string
}

type memoEntry struct {
	key  memoKey
	line string
}

// Memo remembers the last line served per (npc, quest, user). It lives only
// as long as the process; oldest entries are evicted first once full.
type Memo struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[memoKey]*list.Element
}

// NewMemo creates a memo holding at most capacity entries.
func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = DefaultMemoSize
	}
	return &Memo{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[memoKey]*list.Element),
	}
}

// Last returns the previous line served for the key, if any.
func (m *Memo) Last(npc, questID, userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[memoKey{npc, questID, userID}]
	if !ok {
		return "", false
	}
	return el.Value.(*memoEntry).line, true
}

// Remember records line as the latest one served for the key.
func (m *Memo) Remember(npc, questID, userID, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoKey{npc, questID, userID}
	if el, ok := m.entries[key]; ok {
		el.Value.(*memoEntry).line = line
		m.order.MoveToBack(el)
		return
	}

	m.entries[key] = m.order.PushBack(&memoEntry{key: key, line: line})
	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoEntry).key)
	}
}

// Len returns the number of remembered keys.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
