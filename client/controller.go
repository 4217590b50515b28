package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/protocol"
)

// Transport is the part of Channel the controller depends on.
type Transport interface {
	Subscribe() *Subscription
	Send(ctx context.Context, event string, payload any) (*Call, error)
}

// RenderFunc receives every board the controller settles on. It runs with
// the controller locked and must not call back into the controller.
type RenderFunc func(domain.Board)

// Controller holds the board a user sees. Moves are applied locally first
// and then confirmed or corrected by the coordinator.
type Controller struct {
	tx     Transport
	store  *SnapshotStore
	render RenderFunc
	log    *log.Logger
	sub    *Subscription

	mu      sync.Mutex
	board   domain.Board
	version uint64
	synced  bool
	pending string
	settled chan struct{}
}

// NewController subscribes to tx immediately so no event is missed before
// Run starts. store must be the store the transport records into.
func NewController(tx Transport, store *SnapshotStore, render RenderFunc, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if render == nil {
		render = func(domain.Board) {}
	}
	return &Controller{
		tx:      tx,
		store:   store,
		render:  render,
		log:     logger,
		sub:     tx.Subscribe(),
		board:   domain.Board{Lists: []domain.List{}},
		settled: make(chan struct{}),
	}
}

// Board returns a copy of the board as currently rendered.
func (c *Controller) Board() domain.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Clone()
}

// Version is the canonical version the rendered board was last replaced
// from. Optimistic moves do not change it.
func (c *Controller) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Pending reports whether a request is awaiting its reply.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != ""
}

// Synced is closed after the first full sync from the coordinator.
func (c *Controller) Synced() <-chan struct{} {
	return c.settled
}

// Run consumes channel events until ctx ends or the subscription closes.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.sub.Done():
			return nil
		case ev := <-c.sub.C():
			c.handle(ev)
		}
	}
}

func (c *Controller) Close() {
	c.sub.Close()
}

func (c *Controller) ApplyListMove(ctx context.Context, source, destination int) error {
	if source == destination {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := domain.ReorderLists(c.board, source, destination)
	if err != nil {
		return err
	}
	c.show(next)
	return c.send(ctx, protocol.EventListReorder, domain.ListMove{SourceIndex: source, DestinationIndex: destination})
}

func (c *Controller) ApplyCardMove(ctx context.Context, source, destination domain.Location) error {
	if source == destination {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := domain.ReorderCards(c.board, source, destination)
	if err != nil {
		return err
	}
	c.show(next)
	return c.send(ctx, protocol.EventCardReorder, domain.NewCardMove(source, destination))
}

// CreateList asks the coordinator for a new list. Identifiers are assigned
// remotely so nothing is rendered until the reply.
func (c *Controller) CreateList(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, protocol.EventListCreate, protocol.ListCreate{Name: name})
}

func (c *Controller) RenameList(ctx context.Context, listID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, protocol.EventListRename, protocol.ListRename{ListID: listID, Name: name})
}

func (c *Controller) DeleteList(ctx context.Context, listID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, protocol.EventListDelete, protocol.ListDelete{ListID: listID})
}

func (c *Controller) CreateCard(ctx context.Context, listID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, protocol.EventCardCreate, protocol.CardCreate{ListID: listID, Text: text})
}

func (c *Controller) DeleteCard(ctx context.Context, cardID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, protocol.EventCardDelete, protocol.CardDelete{CardID: cardID})
}

// send must be called with mu held. When the request never leaves the
// client, the board rolls back to the latest canonical snapshot.
func (c *Controller) send(ctx context.Context, event string, payload any) error {
	call, err := c.tx.Send(ctx, event, payload)
	if err != nil {
		// a dropped connection keeps the optimistic board until the resync
		if !errors.Is(err, ErrConnectionLost) {
			if latest, ok := c.store.Latest(); ok {
				c.replace(latest)
			}
		}
		return fmt.Errorf("send %s: %w", event, err)
	}
	c.pending = call.Request.ID
	go c.await(call)
	return nil
}

func (c *Controller) await(call *Call) {
	var res Result
	select {
	case res = <-call.Done():
	case <-c.sub.Done():
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.log.WithFields(log.Fields{"request": call.Request.ID, "event": call.Request.Event})
	if call.Request.ID != c.pending {
		entry.Debug("discarding reply to superseded request")
		return
	}
	if errors.Is(res.Err, ErrConnectionLost) {
		// the next sync settles the board
		return
	}
	c.pending = ""
	if res.Err != nil {
		entry.WithError(res.Err).Info("request rejected; rolling back")
	}
	if latest, ok := c.store.Latest(); ok {
		c.replace(latest)
	} else if res.Err == nil {
		c.replace(res.Snapshot)
	}
}

func (c *Controller) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case EventSynced:
		c.pending = ""
		c.replace(ev.Snapshot)
		if !c.synced {
			c.synced = true
			close(c.settled)
		}
	case EventUpdated:
		if c.pending != "" || !c.synced {
			return
		}
		latest, ok := c.store.Latest()
		if !ok {
			latest = ev.Snapshot
		}
		if latest.Version > c.version {
			c.replace(latest)
		}
	case EventDisconnected:
		c.log.WithError(ev.Err).Info("disconnected; keeping local board until resync")
	}
}

func (c *Controller) replace(s domain.Snapshot) {
	c.version = s.Version
	c.show(s.Board.Clone())
}

func (c *Controller) show(b domain.Board) {
	c.board = b
	c.render(b.Clone())
}
