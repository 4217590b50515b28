package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/protocol"
)

var (
	// ErrConnectionLost resolves every call outstanding when the socket drops,
	// and is returned by sends made while disconnected.
	ErrConnectionLost = errors.New("connection lost")
	ErrQueueFull      = errors.New("send queue full")
	ErrClosed         = errors.New("channel closed")
)

const (
	DefaultReconnectMin = 500 * time.Millisecond
	DefaultReconnectMax = 5 * time.Second
	DefaultQueueSize    = 64

	writeWait       = 10 * time.Second
	subscriptionBuf = 16
)

type EventKind int

const (
	// EventSynced carries the GET reply sent on every (re)connection.
	EventSynced EventKind = iota + 1
	// EventUpdated carries an unsolicited UPDATE push.
	EventUpdated
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventSynced:
		return "synced"
	case EventUpdated:
		return "updated"
	case EventDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type Event struct {
	Kind     EventKind
	Snapshot domain.Snapshot
	Err      error
}

// Result is the coordinator's answer to one request.
type Result struct {
	Snapshot domain.Snapshot
	Err      error
}

// Call is an in-flight request. Done yields exactly one Result.
type Call struct {
	Request protocol.Request
	done    chan Result
	once    sync.Once
}

func newCall(req protocol.Request) *Call {
	return &Call{Request: req, done: make(chan Result, 1)}
}

func (c *Call) Done() <-chan Result { return c.done }

func (c *Call) resolve(r Result) {
	c.once.Do(func() { c.done <- r })
}

// Wait blocks until the call resolves or ctx ends.
func (c *Call) Wait(ctx context.Context) (domain.Snapshot, error) {
	select {
	case r := <-c.done:
		return r.Snapshot, r.Err
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
}

// Subscription receives channel events until closed.
type Subscription struct {
	ch    chan Event
	done  chan struct{}
	owner *Channel
	once  sync.Once
}

func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
		close(s.done)
	})
}

type Options struct {
	URL          string
	Store        *SnapshotStore
	Logger       *log.Logger
	Dialer       *websocket.Dialer
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	QueueSize    int
}

// Channel is the client side of the sync socket. It keeps one connection to
// the coordinator alive, redialing with exponential backoff, and sends
// requests in FIFO order through a single writer.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	store  *SnapshotStore
	log    *log.Logger
	min    time.Duration
	max    time.Duration
	queue  chan *Call

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	pending   map[string]*Call
	connected bool
	opened    bool
	closed    bool
	cancel    context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewChannel(opts Options) *Channel {
	if opts.Store == nil {
		opts.Store = NewSnapshotStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = DefaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = DefaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Channel{
		url:     opts.URL,
		dialer:  opts.Dialer,
		store:   opts.Store,
		log:     opts.Logger,
		min:     opts.ReconnectMin,
		max:     opts.ReconnectMax,
		queue:   make(chan *Call, opts.QueueSize),
		subs:    make(map[*Subscription]struct{}),
		pending: make(map[string]*Call),
	}
}

func (c *Channel) Store() *SnapshotStore { return c.store }

// Open starts the connection manager. It returns immediately; connection
// progress is reported to subscribers.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return errors.New("channel already open")
	}
	c.opened = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.manage(ctx)
	return nil
}

func (c *Channel) Subscribe() *Subscription {
	s := &Subscription{
		ch:    make(chan Event, subscriptionBuf),
		done:  make(chan struct{}),
		owner: c,
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(s.done)
		s.once.Do(func() {})
		return s
	}
	c.subs[s] = struct{}{}
	c.mu.Unlock()
	return s
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send queues a request without blocking. The returned call resolves with
// the authoritative snapshot or the rejection.
func (c *Channel) Send(ctx context.Context, event string, payload any) (*Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, err := protocol.NewRequest(event, payload)
	if err != nil {
		return nil, err
	}
	call := newCall(req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if !c.connected {
		return nil, ErrConnectionLost
	}
	select {
	case c.queue <- call:
		c.pending[req.ID] = call
		return call, nil
	default:
		return nil, ErrQueueFull
	}
}

// SendListReorder asks the coordinator to move the list at source to destination.
func (c *Channel) SendListReorder(ctx context.Context, source, destination int) (*Call, error) {
	return c.Send(ctx, protocol.EventListReorder, domain.ListMove{SourceIndex: source, DestinationIndex: destination})
}

// SendCardReorder sends a card move, possibly across lists.
func (c *Channel) SendCardReorder(ctx context.Context, m domain.CardMove) (*Call, error) {
	return c.Send(ctx, protocol.EventCardReorder, m)
}

// SendCreateList asks for a new list. The coordinator assigns its id.
func (c *Channel) SendCreateList(ctx context.Context, name string) (*Call, error) {
	return c.Send(ctx, protocol.EventListCreate, protocol.ListCreate{Name: name})
}

// SendRenameList renames a list.
func (c *Channel) SendRenameList(ctx context.Context, listID, name string) (*Call, error) {
	return c.Send(ctx, protocol.EventListRename, protocol.ListRename{ListID: listID, Name: name})
}

// SendDeleteList removes a list and its cards.
func (c *Channel) SendDeleteList(ctx context.Context, listID string) (*Call, error) {
	return c.Send(ctx, protocol.EventListDelete, protocol.ListDelete{ListID: listID})
}

// SendCreateCard appends a card to a list. The coordinator assigns its id.
func (c *Channel) SendCreateCard(ctx context.Context, listID, text string) (*Call, error) {
	return c.Send(ctx, protocol.EventCardCreate, protocol.CardCreate{ListID: listID, Text: text})
}

// SendDeleteCard removes a card.
func (c *Channel) SendDeleteCard(ctx context.Context, cardID string) (*Call, error) {
	return c.Send(ctx, protocol.EventCardDelete, protocol.CardDelete{CardID: cardID})
}

// Close removes every subscription, fails outstanding calls, closes the
// socket and waits for the background goroutines. It is safe to call more
// than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancel
		subs := make([]*Subscription, 0, len(c.subs))
		for s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		for _, s := range subs {
			s.Close()
		}
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		c.failPending(ErrConnectionLost)
	})
	return nil
}

func (c *Channel) manage(ctx context.Context) {
	defer c.wg.Done()
	backoff := c.min
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).WithField("retry_in", backoff).Warn("dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.max {
				backoff = c.max
			}
			continue
		}
		backoff = c.min
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
	}
}

// serve runs one connection until it drops.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.failPending(ErrConnectionLost)
		if ctx.Err() == nil {
			c.emit(ctx, Event{Kind: EventDisconnected, Err: ErrConnectionLost})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		_ = conn.Close()
	}()

	conn.SetReadLimit(protocol.MaxFrameSize)
	syncReq, err := protocol.NewRequest(protocol.EventGet, nil)
	if err != nil {
		c.log.WithError(err).Error("build sync request")
		return
	}
	if err := writeRequest(conn, syncReq); err != nil {
		c.log.WithError(err).Warn("sync request failed")
		return
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.WithField("url", c.url).Info("connected")

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(connCtx, conn)
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if connCtx.Err() == nil {
				c.log.WithError(err).Warn("connection dropped")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			c.log.WithError(err).Warn("ignoring undecodable message")
			continue
		}
		c.dispatch(connCtx, syncReq.ID, msg)
	}
}

func (c *Channel) dispatch(ctx context.Context, syncID string, msg protocol.Message) {
	switch {
	case msg.Event == protocol.EventUpdate && msg.Snapshot != nil:
		c.store.Record(*msg.Snapshot)
		c.emit(ctx, Event{Kind: EventUpdated, Snapshot: *msg.Snapshot})
	case msg.ID != "" && msg.ID == syncID && msg.Snapshot != nil:
		c.store.Reset(*msg.Snapshot)
		c.emit(ctx, Event{Kind: EventSynced, Snapshot: *msg.Snapshot})
	case msg.ID != "":
		c.mu.Lock()
		call, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if msg.Snapshot != nil {
			c.store.Record(*msg.Snapshot)
		}
		if !ok {
			return
		}
		res := Result{}
		if msg.Snapshot != nil {
			res.Snapshot = *msg.Snapshot
		}
		if msg.Error != nil {
			res.Err = msg.Error
		}
		call.resolve(res)
	default:
		if msg.Error != nil {
			c.log.WithError(msg.Error).Warn("coordinator rejected a frame")
		}
	}
}

func (c *Channel) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case call := <-c.queue:
			c.mu.Lock()
			_, live := c.pending[call.Request.ID]
			c.mu.Unlock()
			if !live {
				continue
			}
			if err := writeRequest(conn, call.Request); err != nil {
				c.log.WithError(err).Warn("write failed")
				return
			}
		}
	}
}

func writeRequest(conn *websocket.Conn, req protocol.Request) error {
	data, err := protocol.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", req.Event, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Channel) failPending(err error) {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.pending))
	for id, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	for _, call := range calls {
		call.resolve(Result{Err: err})
	}
}

// emit delivers ev to every subscriber, waiting on slow ones until they
// close or ctx ends.
func (c *Channel) emit(ctx context.Context, ev Event) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
}
