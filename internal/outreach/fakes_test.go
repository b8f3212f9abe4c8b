package outreach

import (
	"context"
	"sync"
	"time"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
)

type fakeStore struct {
	mu       sync.Mutex
	regs     map[string]models.Registration
	recs     map[string]*models.OutreachRecord
	claimErr error
	getErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		regs: make(map[string]models.Registration),
		recs: make(map[string]*models.OutreachRecord),
	}
}

func (f *fakeStore) Exists(_ context.Context, memberID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.regs[memberID]
	return ok, nil
}

func (f *fakeStore) Upsert(_ context.Context, reg *models.Registration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, existed := f.regs[reg.MemberID]
	f.regs[reg.MemberID] = *reg
	return !existed, nil
}

func (f *fakeStore) Get(_ context.Context, memberID string) (*models.OutreachRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.recs[memberID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) Claim(_ context.Context, memberID string, now time.Time, p Policy) (Reason, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return "", f.claimErr
	}
	_, registered := f.regs[memberID]
	reason := Evaluate(registered, f.recs[memberID], now, p)
	if reason.Eligible() {
		rec := f.ensure(memberID)
		t := now
		rec.LastAttemptAt = &t
	}
	return reason, nil
}

func (f *fakeStore) RecordAttempt(_ context.Context, memberID string, at time.Time, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.ensure(memberID)
	rec.AttemptCount++
	t := at
	rec.LastAttemptAt = &t
	rec.Blocked = rec.Blocked || blocked
	return nil
}

func (f *fakeStore) MarkOptedOut(_ context.Context, memberID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(memberID).OptedOut = true
	return nil
}

func (f *fakeStore) ensure(memberID string) *models.OutreachRecord {
	rec, ok := f.recs[memberID]
	if !ok {
		rec = &models.OutreachRecord{MemberID: memberID}
		f.recs[memberID] = rec
	}
	return rec
}

func (f *fakeStore) record(memberID string) models.OutreachRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[memberID]; ok {
		return *rec
	}
	return models.OutreachRecord{MemberID: memberID}
}

func (f *fakeStore) registration(memberID string) (models.Registration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[memberID]
	return reg, ok
}

type fakeGateway struct {
	mu         sync.Mutex
	sendErr    error
	postErr    error
	replies    map[string][]string
	block      chan struct{} // when set, AwaitReply waits on it before answering
	sent       chan string   // receives member IDs of prompts, if set
	dms        map[string][]string
	posts      []string
	awaitCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		replies: make(map[string][]string),
		dms:     make(map[string][]string),
	}
}

func (g *fakeGateway) queueReply(memberID, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[memberID] = append(g.replies[memberID], text)
}

func (g *fakeGateway) SendDirect(_ context.Context, memberID, text string) error {
	g.mu.Lock()
	if g.sendErr != nil {
		err := g.sendErr
		g.mu.Unlock()
		return err
	}
	g.dms[memberID] = append(g.dms[memberID], text)
	sent := g.sent
	g.mu.Unlock()
	if sent != nil {
		sent <- memberID
	}
	return nil
}

func (g *fakeGateway) AwaitReply(ctx context.Context, memberID string, _ time.Duration) (string, error) {
	g.mu.Lock()
	g.awaitCalls++
	block := g.block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	queued := g.replies[memberID]
	if len(queued) == 0 {
		return "", ErrReplyTimeout
	}
	g.replies[memberID] = queued[1:]
	return queued[0], nil
}

func (g *fakeGateway) PostToChannel(_ context.Context, _ string, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.postErr != nil {
		return g.postErr
	}
	g.posts = append(g.posts, text)
	return nil
}

func (g *fakeGateway) messages(memberID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.dms[memberID]...)
}

func (g *fakeGateway) postCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.posts)
}

type fakeNotices struct {
	mu       sync.Mutex
	err      error
	payloads []queue.AdminNoticePayload
}

func (n *fakeNotices) EnqueueAdminNotice(_ context.Context, p queue.AdminNoticePayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.payloads = append(n.payloads, p)
	return nil
}

type fakeRoster struct {
	members []Member
	err     error
}

func (r *fakeRoster) ListMembers(context.Context, string) ([]Member, error) {
	return r.members, r.err
}

var testPolicy = Policy{MaxAttempts: 3, Cooldown: 24 * time.Hour}

// fakeClock is a settable clock for Engager.now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestEngager(store *fakeStore, gw *fakeGateway, notices NoticeQueue) (*Engager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	eng := NewEngager(Deps{
		Registrations: store,
		Tracker:       store,
		Gateway:       gw,
		Notices:       notices,
		Metrics:       NewMetrics(nil),
	}, SessionConfig{
		Policy:         testPolicy,
		ReplyTimeout:   time.Second,
		AdminChannelID: "admin",
	}, nil)
	eng.now = clock.Now
	return eng, clock
}
