package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/user/ptyhub/internal/session"
)

const defaultSendBuffer = 256

// Sessions is the part of the session service the hub drives on behalf of
// viewers. *session.Service satisfies it.
type Sessions interface {
	Get(id string) (session.Info, bool)
	List() []session.Info
	SpawnWith(opts session.SpawnOptions, ready func(session.Info)) (session.Info, error)
	Write(id, data string) bool
	RawBuffer(id string) (session.RawBuffer, bool)
}

type Options struct {
	// SendBuffer is the number of frames queued per viewer before the
	// viewer is considered too slow and disconnected.
	SendBuffer int
}

// Hub multiplexes session output to WebSocket viewers. Raw output goes
// only to viewers subscribed to that session; lifecycle updates go to
// every viewer. All subscription state is mutated by the Run loop.
type Hub struct {
	sessions   Sessions
	sendBuffer int

	mu          sync.RWMutex
	clients     map[string]*Client
	subscribers map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	control    chan controlOp
	done       chan struct{}
	running    atomic.Bool
}

type broadcast struct {
	data []byte
	// sessionID routes raw output to subscribers; empty means everyone.
	sessionID string
}

type opKind int

const (
	opReply opKind = iota
	opSubscribe
	opUnsubscribe
	opForget
)

type controlOp struct {
	kind      opKind
	client    *Client
	sessionID string
	reply     []byte
	ack       chan struct{}
}

func New(sessions Sessions, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		sessions:    sessions,
		sendBuffer:  opts.SendBuffer,
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		broadcast:   make(chan broadcast, 256),
		control:     make(chan controlOp, 64),
		done:        make(chan struct{}),
	}
}

// Observe forwards the bus's lifecycle and raw output events to viewers.
func (h *Hub) Observe(bus *session.Bus) (dispose func()) {
	offUpdate := bus.OnSessionUpdate(h.BroadcastUpdate)
	offRaw := bus.OnRawOutput(func(ev session.OutputEvent) {
		h.BroadcastRaw(ev.Session, ev.Data)
	})
	offRemove := bus.OnRemove(func(info session.Info) {
		h.forgetSession(info.ID)
	})
	return func() {
		offUpdate()
		offRaw()
		offRemove()
	}
}

// Run is the hub's reactor loop. It must be called once; it returns when
// ctx is cancelled, after closing every viewer.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.subscribers = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			go c.writePump(ctx)
			go c.readPump(ctx)
			slog.Info("viewer connected", "conn", c.id, "total", total)

		case c := <-h.unregister:
			if h.drop(c) {
				slog.Info("viewer disconnected", "conn", c.id, "total", h.ClientCount())
			}

		case op := <-h.control:
			h.apply(op)

		case b := <-h.broadcast:
			h.fanOut(b)
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.running.Load() {
		http.Error(w, "hub not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	client := newClient(conn, h)
	select {
	case h.register <- client:
	default:
		slog.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// BroadcastUpdate sends a session_update frame to every viewer.
func (h *Hub) BroadcastUpdate(info session.Info) {
	h.send(SessionUpdateMessage{Type: TypeSessionUpdate, Session: info}, "")
}

// BroadcastRaw sends one raw_data frame to each viewer subscribed to the
// session. It blocks while the reactor is backed up rather than drop a
// chunk.
func (h *Hub) BroadcastRaw(info session.Info, data string) {
	h.send(RawDataMessage{Type: TypeRawData, Session: info, RawData: data}, info.ID)
}

func (h *Hub) send(msg any, sessionID string) {
	if !h.running.Load() {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal broadcast frame", "error", err)
		return
	}
	select {
	case h.broadcast <- broadcast{data: data, sessionID: sessionID}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount reports how many viewers receive raw output for id.
func (h *Hub) SubscriberCount(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[id])
}

func (h *Hub) fanOut(b broadcast) {
	h.mu.RLock()
	var targets []*Client
	if b.sessionID == "" {
		targets = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		targets = make([]*Client, 0, len(h.subscribers[b.sessionID]))
		for c := range h.subscribers[b.sessionID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, b.data)
	}
}

func (h *Hub) apply(op controlOp) {
	if op.ack != nil {
		defer close(op.ack)
	}

	if op.kind == opForget {
		h.mu.Lock()
		for c := range h.subscribers[op.sessionID] {
			delete(c.subs, op.sessionID)
		}
		delete(h.subscribers, op.sessionID)
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[op.client.id]; !ok {
		h.mu.Unlock()
		return
	}
	switch op.kind {
	case opSubscribe:
		subs, ok := h.subscribers[op.sessionID]
		if !ok {
			subs = make(map[*Client]struct{})
			h.subscribers[op.sessionID] = subs
		}
		subs[op.client] = struct{}{}
		op.client.subs[op.sessionID] = struct{}{}
	case opUnsubscribe:
		h.removeSubscription(op.client, op.sessionID)
	}
	h.mu.Unlock()

	if op.reply != nil {
		h.deliver(op.client, op.reply)
	}
}

// deliver queues data for c. A viewer whose queue is full is disconnected
// so that every remaining viewer keeps receiving every chunk.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		if h.drop(c) {
			slog.Warn("viewer too slow, disconnecting", "conn", c.id)
			go c.conn.Close(websocket.StatusPolicyViolation, "send buffer full")
		}
	}
}

// drop forgets c and closes its send queue. It reports false when c was
// already gone.
func (h *Hub) drop(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return false
	}
	delete(h.clients, c.id)
	for id := range c.subs {
		h.removeSubscription(c, id)
	}
	close(c.send)
	return true
}

// removeSubscription requires h.mu.
func (h *Hub) removeSubscription(c *Client, id string) {
	delete(c.subs, id)
	if subs, ok := h.subscribers[id]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscribers, id)
		}
	}
}

func (h *Hub) submit(op controlOp) bool {
	if !h.running.Load() {
		return false
	}
	select {
	case h.control <- op:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) reply(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal reply frame", "conn", c.id, "error", err)
		return
	}
	h.submit(controlOp{kind: opReply, client: c, reply: data})
}

// subscribe adds c to the session's subscribers and waits until the
// reactor has applied it, so raw output published afterwards reaches c.
func (h *Hub) subscribe(c *Client, id string, reply any) {
	var data []byte
	if reply != nil {
		var err error
		if data, err = json.Marshal(reply); err != nil {
			slog.Error("marshal reply frame", "conn", c.id, "error", err)
			return
		}
	}
	ack := make(chan struct{})
	if !h.submit(controlOp{kind: opSubscribe, client: c, sessionID: id, reply: data, ack: ack}) {
		return
	}
	select {
	case <-ack:
	case <-h.done:
	}
}

func (h *Hub) unsubscribe(c *Client, id string) {
	data, err := json.Marshal(SubscriptionMessage{Type: TypeUnsubscribed, SessionID: id})
	if err != nil {
		return
	}
	h.submit(controlOp{kind: opUnsubscribe, client: c, sessionID: id, reply: data})
}

// forgetSession drops the subscriber set of a session that left the
// registry. Viewers are not told; the session simply stops producing.
func (h *Hub) forgetSession(id string) {
	h.submit(controlOp{kind: opForget, sessionID: id})
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.running.Load() {
		return
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
