package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
)

// fakeRelay is a minimal relay: it acks requests and scripts DM replies.
type fakeRelay struct {
	replies map[string]string
	posts   chan postChannelData
	auth    chan string
}

func (r *fakeRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	upgrader := websocket.Upgrader{}
	r.auth <- req.Header.Get("Authorization")
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	write := func(op, id string, v any) {
		data, _ := json.Marshal(v)
		_ = conn.WriteJSON(Frame{Op: op, ID: id, Data: data})
	}
	write(OpMemberJoined, "", MemberJoinedData{MemberID: "new", DisplayName: "Newbie", CommunityID: "c1"})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Op {
		case OpSendDM:
			var d sendDMData
			_ = json.Unmarshal(f.Data, &d)
			if d.MemberID == "unknown" {
				write(OpAck, f.ID, Ack{ErrorCode: "unknown_member", Error: "no such member"})
				continue
			}
			if d.MemberID == "closed" {
				write(OpAck, f.ID, Ack{ErrorCode: ErrorCodeForbidden, Error: "cannot send messages to this user"})
				continue
			}
			write(OpAck, f.ID, Ack{OK: true})
			if reply, ok := r.replies[d.MemberID]; ok {
				write(OpMessageReceived, "", MessageReceivedData{AuthorID: d.MemberID, Text: reply, IsDM: true})
			}
		case OpPostChannel:
			var d postChannelData
			_ = json.Unmarshal(f.Data, &d)
			r.posts <- d
			write(OpAck, f.ID, Ack{OK: true})
		case OpListMembers:
			data, _ := json.Marshal(listMembersResult{Members: []MemberData{
				{MemberID: "a", DisplayName: "Ann"},
				{MemberID: "b", DisplayName: "Helper", IsBot: true},
			}})
			write(OpAck, f.ID, Ack{OK: true, Data: data})
		}
	}
}

func startClient(t *testing.T, relay *fakeRelay) (*Client, chan outreach.MemberJoined, func()) {
	t.Helper()
	srv := httptest.NewServer(relay)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := NewClient(Config{URL: url, Token: "secret", RequestTimeout: 2 * time.Second, ReconnectDelay: 10 * time.Millisecond}, nil)
	joined := make(chan outreach.MemberJoined, 1)
	c.OnMemberJoined(func(_ context.Context, evt outreach.MemberJoined) { joined <- evt })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
	return c, joined, func() {
		cancel()
		<-done
		srv.Close()
	}
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		replies: map[string]string{"m1": "Jane Doe, @janedoe"},
		posts:   make(chan postChannelData, 4),
		auth:    make(chan string, 4),
	}
}

func TestClientPromptAndReply(t *testing.T) {
	relay := newFakeRelay()
	c, _, stop := startClient(t, relay)
	defer stop()

	assert.Equal(t, "Bot secret", <-relay.auth)
	assert.True(t, c.Connected())

	ctx := context.Background()
	require.NoError(t, c.SendDirect(ctx, "m1", "hello"))
	text, err := c.AwaitReply(ctx, "m1", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe, @janedoe", text)
}

func TestClientForbiddenSend(t *testing.T) {
	c, _, stop := startClient(t, newFakeRelay())
	defer stop()

	err := c.SendDirect(context.Background(), "closed", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, outreach.ErrDeliveryForbidden))
	assert.Zero(t, c.mailbox.Pending())
}

func TestClientRelayErrorIsRejection(t *testing.T) {
	c, _, stop := startClient(t, newFakeRelay())
	defer stop()

	err := c.SendDirect(context.Background(), "unknown", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, outreach.ErrDeliveryRejected)
	assert.NotErrorIs(t, err, outreach.ErrDeliveryForbidden)
}

func TestClientSendWithoutConnectionIsNotADeliveryFailure(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1"}, nil)
	err := c.SendDirect(context.Background(), "m1", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, outreach.ErrDeliveryForbidden)
	assert.NotErrorIs(t, err, outreach.ErrDeliveryRejected)
	assert.Zero(t, c.mailbox.Pending())
}

func TestClientNoReplyTimesOut(t *testing.T) {
	c, _, stop := startClient(t, newFakeRelay())
	defer stop()

	require.NoError(t, c.SendDirect(context.Background(), "silent", "hello"))
	_, err := c.AwaitReply(context.Background(), "silent", 50*time.Millisecond)
	assert.ErrorIs(t, err, outreach.ErrReplyTimeout)
}

func TestClientMemberJoinedEvent(t *testing.T) {
	_, joined, stop := startClient(t, newFakeRelay())
	defer stop()

	select {
	case evt := <-joined:
		assert.Equal(t, outreach.MemberJoined{MemberID: "new", DisplayName: "Newbie", CommunityID: "c1"}, evt)
	case <-time.After(5 * time.Second):
		t.Fatal("no member_joined event")
	}
}

func TestClientRosterAndChannel(t *testing.T) {
	relay := newFakeRelay()
	c, _, stop := startClient(t, relay)
	defer stop()
	ctx := context.Background()

	members, err := c.ListMembers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []outreach.Member{
		{ID: "a", DisplayName: "Ann"},
		{ID: "b", DisplayName: "Helper", IsBot: true},
	}, members)

	require.NoError(t, c.PostToChannel(ctx, "admin", "New registration"))
	post := <-relay.posts
	assert.Equal(t, "admin", post.ChannelID)
	assert.Equal(t, "New registration", post.Text)
}

func TestClientRequestWithoutConnection(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1"}, nil)
	assert.False(t, c.Connected())
	err := c.PostToChannel(context.Background(), "admin", "x")
	assert.ErrorIs(t, err, ErrNotConnected)
}
