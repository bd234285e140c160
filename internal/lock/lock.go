// Package lock serializes transfers that touch the same accounts.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrLockFailed = errors.New("failed to acquire lock")

// Locker acquires every key or none. Keys are taken in sorted order so two
// transfers over the same pair of accounts never deadlock.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// LocalLocker guards keys within a single process. A slot lives only while
// some caller holds or waits on it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := normalize(keys)
	held := make([]string, 0, len(ordered))
	slots := make([]*slot, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-slots[i].ch
			l.unref(held[i])
		}
	}

	for _, key := range ordered {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
			slots = append(slots, s)
		case <-ctx.Done():
			l.unref(key)
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// normalize sorts keys and drops duplicates.
func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)

	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}
