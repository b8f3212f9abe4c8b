package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
)

// Mailbox routes inbound DMs to sessions waiting for a reply. A slot is armed before the
// prompt goes out; DMs from members without a live slot are dropped.
type Mailbox struct {
	mu    sync.Mutex
	slots map[string]*slot
	ttl   time.Duration
	now   func() time.Time
}

type slot struct {
	ch      chan string
	expires time.Time
}

// NewMailbox creates a mailbox whose armed slots expire after ttl.
func NewMailbox(ttl time.Duration) *Mailbox {
	return &Mailbox{slots: make(map[string]*slot), ttl: ttl, now: time.Now}
}

// Arm opens a fresh slot for memberID, discarding anything buffered in an older one.
func (m *Mailbox) Arm(memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.slots {
		if now.After(s.expires) {
			delete(m.slots, id)
		}
	}
	m.slots[memberID] = &slot{ch: make(chan string, 1), expires: now.Add(m.ttl)}
}

// Disarm closes the slot for memberID.
func (m *Mailbox) Disarm(memberID string) {
	m.mu.Lock()
	delete(m.slots, memberID)
	m.mu.Unlock()
}

// Deliver hands text to the member's armed slot. It reports whether the DM was accepted.
// Only the first DM per arming is kept.
func (m *Mailbox) Deliver(memberID, text string) bool {
	m.mu.Lock()
	s, ok := m.slots[memberID]
	if ok && m.now().After(s.expires) {
		delete(m.slots, memberID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.ch <- text:
		return true
	default:
		return false
	}
}

// Wait blocks for the member's reply. An unarmed member is armed on entry.
func (m *Mailbox) Wait(ctx context.Context, memberID string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	s, ok := m.slots[memberID]
	if !ok {
		s = &slot{ch: make(chan string, 1), expires: m.now().Add(timeout)}
		m.slots[memberID] = s
	} else if until := m.now().Add(timeout); until.After(s.expires) {
		s.expires = until
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.slots[memberID] == s {
			delete(m.slots, memberID)
		}
		m.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case text := <-s.ch:
		return text, nil
	case <-timer.C:
		return "", outreach.ErrReplyTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending returns the number of armed slots.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
