package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLocker_SerializesOverlappingKeys(t *testing.T) {
	l := NewKeyLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := l.Lock("a", "b")
			counter++
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := l.Lock("b", "a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, l.Len())
}

func TestKeyLocker_DuplicateKeysAndDoubleUnlock(t *testing.T) {
	l := NewKeyLocker()

	unlock := l.Lock("a", "a", "a")
	assert.Equal(t, 1, l.Len())
	unlock()
	unlock()
	assert.Equal(t, 0, l.Len())

	// 再次加锁不应阻塞
	l.Lock("a")()
}

func TestKeyLocker_DisjointKeysDoNotBlock(t *testing.T) {
	l := NewKeyLocker()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		l.Lock("b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a disjoint key blocked")
	}
}

func TestKeyLocker_BlocksUntilReleased(t *testing.T) {
	l := NewKeyLocker()
	unlock := l.Lock("x", "y")

	acquired := make(chan struct{})
	go func() {
		l.Lock("y")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not released")
	}
	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, sortedUnique(nil))
}
