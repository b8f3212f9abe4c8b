package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Frame ops exchanged with the relay.
const (
	OpSendDM          = "send_dm"
	OpPostChannel     = "post_channel"
	OpListMembers     = "list_members"
	OpAck             = "ack"
	OpMemberJoined    = "member_joined"
	OpMessageReceived = "message_received"
)

// ErrorCodeForbidden is the ack error code for a member that cannot be messaged.
const ErrorCodeForbidden = "forbidden"

// ErrNotConnected is returned when a request is made while the relay is unreachable.
var ErrNotConnected = errors.New("gateway not connected")

// Frame is the relay wire envelope.
type Frame struct {
	Op   string          `json:"op"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Ack answers a request frame with the same ID.
type Ack struct {
	OK        bool            `json:"ok"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type sendDMData struct {
	MemberID string `json:"member_id"`
	Text     string `json:"text"`
}

type postChannelData struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

type listMembersData struct {
	CommunityID string `json:"community_id"`
}

// MemberData is one roster entry.
type MemberData struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
}

type listMembersResult struct {
	Members []MemberData `json:"members"`
}

// MemberJoinedData is the payload of a member_joined event.
type MemberJoinedData struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
	CommunityID string `json:"community_id"`
}

// MessageReceivedData is the payload of a message_received event.
type MessageReceivedData struct {
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
	IsDM     bool   `json:"is_dm"`
}

// JoinHandler is invoked on the read loop for every member_joined event; it must not block.
type JoinHandler func(ctx context.Context, evt outreach.MemberJoined)

// Config holds relay connection settings.
type Config struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
	ReplyWindow    time.Duration
}

// Client is a WebSocket connection to the messaging relay. It implements
// outreach.Gateway and outreach.Roster.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	mailbox *Mailbox

	connMu  sync.Mutex // guards conn and serialises writes
	conn    *websocket.Conn
	ready   chan struct{}
	readyMu sync.Once

	pendingMu sync.Mutex
	pending   map[string]chan Ack

	onJoin JoinHandler
}

// NewClient creates a relay client. Call Run to connect.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.ReplyWindow <= 0 {
		cfg.ReplyWindow = 5 * time.Minute
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		mailbox: NewMailbox(cfg.ReplyWindow),
		ready:   make(chan struct{}),
		pending: make(map[string]chan Ack),
	}
}

// OnMemberJoined registers the join handler. Call before Run.
func (c *Client) OnMemberJoined(fn JoinHandler) { c.onJoin = fn }

// Ready is closed after the first successful connection.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Connected reports whether a relay connection is currently open.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Run keeps the relay connection alive until ctx is done, reconnecting after failures.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("gateway dial failed", zap.Error(err), zap.Duration("retry_in", c.cfg.ReconnectDelay))
		} else {
			c.logger.Info("gateway connected", zap.String("url", c.cfg.URL))
			c.serve(ctx, conn)
			c.logger.Warn("gateway disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bot "+c.cfg.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.readyMu.Do(func() { close(c.ready) })

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c.readLoop(ctx, conn)
	close(done)

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()
	c.failPending()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("gateway read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(PongWait))
		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame Frame) {
	switch frame.Op {
	case OpAck:
		var ack Ack
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			c.logger.Warn("invalid ack", zap.String("id", frame.ID), zap.Error(err))
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- ack
		}
	case OpMemberJoined:
		var evt MemberJoinedData
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			c.logger.Warn("invalid member_joined event", zap.Error(err))
			return
		}
		if c.onJoin != nil {
			c.onJoin(ctx, outreach.MemberJoined{
				MemberID:    evt.MemberID,
				DisplayName: evt.DisplayName,
				IsBot:       evt.IsBot,
				CommunityID: evt.CommunityID,
			})
		}
	case OpMessageReceived:
		var msg MessageReceivedData
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			c.logger.Warn("invalid message_received event", zap.Error(err))
			return
		}
		if !msg.IsDM {
			return
		}
		if !c.mailbox.Deliver(msg.AuthorID, msg.Text) {
			c.logger.Debug("dm without waiting session dropped", zap.String("member_id", msg.AuthorID))
		}
	default:
		// ignore
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- Ack{OK: false, Error: ErrNotConnected.Error()}
		delete(c.pending, id)
	}
}

// request writes op and waits for the matching ack.
func (c *Client) request(ctx context.Context, op string, payload any) (Ack, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal %s: %w", op, err)
	}
	frame := Frame{Op: op, ID: uuid.New().String(), Data: data}
	ch := make(chan Ack, 1)
	c.pendingMu.Lock()
	c.pending[frame.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, frame.ID)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	conn := c.conn
	if conn == nil {
		c.connMu.Unlock()
		return Ack{}, ErrNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(frame)
	c.connMu.Unlock()
	if err != nil {
		return Ack{}, fmt.Errorf("write %s: %w", op, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-timer.C:
		return Ack{}, fmt.Errorf("%s: no ack within %s", op, c.cfg.RequestTimeout)
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

func ackError(op string, ack Ack) error {
	if ack.ErrorCode == ErrorCodeForbidden {
		return fmt.Errorf("%s: %w", op, outreach.ErrDeliveryForbidden)
	}
	if ack.Error != "" {
		return fmt.Errorf("%s: %w: %s", op, outreach.ErrDeliveryRejected, ack.Error)
	}
	return fmt.Errorf("%s: %w (code %q)", op, outreach.ErrDeliveryRejected, ack.ErrorCode)
}

// SendDirect implements outreach.Gateway.
func (c *Client) SendDirect(ctx context.Context, memberID, text string) error {
	c.mailbox.Arm(memberID)
	ack, err := c.request(ctx, OpSendDM, sendDMData{MemberID: memberID, Text: text})
	if err == nil && !ack.OK {
		err = ackError(OpSendDM, ack)
	}
	if err != nil {
		c.mailbox.Disarm(memberID)
		return err
	}
	return nil
}

// AwaitReply implements outreach.Gateway.
func (c *Client) AwaitReply(ctx context.Context, memberID string, timeout time.Duration) (string, error) {
	return c.mailbox.Wait(ctx, memberID, timeout)
}

// PostToChannel implements outreach.Gateway.
func (c *Client) PostToChannel(ctx context.Context, channelID, text string) error {
	ack, err := c.request(ctx, OpPostChannel, postChannelData{ChannelID: channelID, Text: text})
	if err != nil {
		return err
	}
	if !ack.OK {
		return ackError(OpPostChannel, ack)
	}
	return nil
}

// ListMembers implements outreach.Roster.
func (c *Client) ListMembers(ctx context.Context, communityID string) ([]outreach.Member, error) {
	ack, err := c.request(ctx, OpListMembers, listMembersData{CommunityID: communityID})
	if err != nil {
		return nil, err
	}
	if !ack.OK {
		return nil, ackError(OpListMembers, ack)
	}
	var res listMembersResult
	if err := json.Unmarshal(ack.Data, &res); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	out := make([]outreach.Member, 0, len(res.Members))
	for _, m := range res.Members {
		out = append(out, outreach.Member{ID: m.MemberID, DisplayName: m.DisplayName, IsBot: m.IsBot})
	}
	return out, nil
}
