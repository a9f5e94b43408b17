package service

import (
	"sort"
	"sync"
)

// KeyLocker 按实体 key 加互斥锁：同一组 key 上的读改写串行，不相交的并行。
// 多个 key 按字典序加锁，不会出现交叉等待。
type KeyLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{entries: make(map[string]*lockEntry)}
}

// Lock 阻塞直到拿到全部 key，返回释放函数
func (l *KeyLocker) Lock(keys ...string) (unlock func()) {
	keys = sortedUnique(keys)
	held := make([]*lockEntry, len(keys))

	l.mu.Lock()
	for i, k := range keys {
		e := l.entries[k]
		if e == nil {
			e = &lockEntry{}
			l.entries[k] = e
		}
		e.refs++
		held[i] = e
	}
	l.mu.Unlock()

	for _, e := range held {
		e.mu.Lock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
			}
			l.mu.Lock()
			for i, k := range keys {
				held[i].refs--
				if held[i].refs == 0 {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		})
	}
}

// Len 当前仍被持有或等待的 key 数
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func sortedUnique(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

func userKey(id string) string    { return "user:" + id }
func emailKey(e string) string    { return "email:" + e }
func requestKey(id string) string { return "request:" + id }
func postKey(id string) string    { return "post:" + id }
func inboxKey(id string) string   { return "inbox:" + id }
