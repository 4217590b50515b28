package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/protocol"
)

// Store persists the canonical snapshot of a board.
type Store interface {
	Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error)
	Save(ctx context.Context, boardID string, s domain.Snapshot) error
}

// Journal receives every accepted change after it has been persisted.
type Journal interface {
	Append(ctx context.Context, c domain.Change) error
}

// Relay forwards accepted snapshots to other processes.
type Relay interface {
	Publish(ctx context.Context, boardID string, s domain.Snapshot) error
}

// Deduper prevents a request id from being applied twice.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the request is rejected.
	Remove(ctx context.Context, scope, key string) error
}

type Options struct {
	BoardID string
	Store   Store
	Hub     *Hub
	Journal Journal
	Relay   Relay
	Deduper Deduper
	Logger  *log.Logger
	NewID   func() string
	Now     func() time.Time
}

// Coordinator owns the canonical board. Every mutation runs under a single
// lock against the current snapshot so all clients observe one sequential
// timeline of versions.
type Coordinator struct {
	boardID string
	store   Store
	hub     *Hub
	journal Journal
	relay   Relay
	deduper Deduper
	log     *log.Logger
	newID   func() string
	now     func() time.Time

	mu      sync.RWMutex
	current domain.Snapshot
}

// New loads the board from the store, seeding an empty one when absent.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("coordinator: store is required")
	}
	if opts.BoardID == "" {
		opts.BoardID = "default"
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		boardID: opts.BoardID,
		store:   opts.Store,
		hub:     opts.Hub,
		journal: opts.Journal,
		relay:   opts.Relay,
		deduper: opts.Deduper,
		log:     opts.Logger,
		newID:   opts.NewID,
		now:     opts.Now,
	}

	snap, ok, err := c.store.Load(ctx, c.boardID)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", c.boardID, err)
	}
	if !ok {
		snap = domain.Snapshot{Board: domain.Board{Lists: []domain.List{}}}
		if err := c.store.Save(ctx, c.boardID, snap); err != nil {
			return nil, fmt.Errorf("seed board %s: %w", c.boardID, err)
		}
		c.log.WithField("board", c.boardID).Info("seeded empty board")
	}
	if err := snap.Board.Validate(); err != nil {
		return nil, fmt.Errorf("stored board %s: %w", c.boardID, err)
	}
	c.current = snap
	c.hub.Publish(snap)
	return c, nil
}

func (c *Coordinator) BoardID() string { return c.boardID }

func (c *Coordinator) Hub() *Hub { return c.hub }

// Snapshot returns the current canonical snapshot. Callers must treat the
// board as read-only.
func (c *Coordinator) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Apply handles one client request. GET returns the current snapshot;
// mutations are computed against the current board, persisted, published to
// every session, relayed and journaled. A rejected request returns the unchanged
// current snapshot together with the error.
func (c *Coordinator) Apply(ctx context.Context, req protocol.Request) (domain.Snapshot, error) {
	if req.Event == protocol.EventGet {
		return c.Snapshot(), nil
	}
	if !req.Mutating() {
		return c.Snapshot(), fmt.Errorf("event %q: %w", req.Event, protocol.ErrBadRequest)
	}

	metrics, spanCtx := newApplyMetrics(ctx, c.log, c.boardID, req.Event)
	snap, change, err := c.apply(spanCtx, req, metrics)
	metrics.Log(err)
	if err != nil {
		return snap, err
	}
	if change == nil {
		return snap, nil
	}
	fields := log.Fields{"board": c.boardID, "version": change.Version}
	if c.relay != nil {
		if rerr := c.relay.Publish(ctx, c.boardID, snap); rerr != nil {
			c.log.WithError(rerr).WithFields(fields).Error("relay publish failed")
		}
	}
	if c.journal != nil {
		if jerr := c.journal.Append(ctx, *change); jerr != nil {
			c.log.WithError(jerr).WithFields(fields).Error("journal append failed")
		}
	}
	return snap, nil
}

func (c *Coordinator) apply(ctx context.Context, req protocol.Request, metrics *applyMetrics) (domain.Snapshot, *domain.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deduper != nil && req.ID != "" {
		fresh, err := c.deduper.Add(ctx, c.boardID, req.ID)
		if err != nil {
			c.log.WithError(err).WithField("request", req.ID).Warn("dedupe check failed; applying request")
		} else if !fresh {
			metrics.SetDuplicate()
			metrics.SetVersion(c.current.Version)
			return c.current, nil, nil
		}
	}

	next, err := c.mutate(c.current.Board, req)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		metrics.SetErrorStage("mutate")
		c.forget(ctx, req.ID)
		return c.current, nil, err
	}

	snap := domain.Snapshot{Version: c.current.Version + 1, Board: next}
	persistStart := time.Now()
	err = c.store.Save(ctx, c.boardID, snap)
	metrics.ObservePersist(time.Since(persistStart))
	if err != nil {
		metrics.SetErrorStage("persist")
		c.forget(ctx, req.ID)
		return c.current, nil, fmt.Errorf("persist board %s: %w", c.boardID, err)
	}

	c.current = snap
	metrics.SetVersion(snap.Version)
	c.hub.Publish(snap)

	change := &domain.Change{
		BoardID:   c.boardID,
		Version:   snap.Version,
		Event:     req.Event,
		RequestID: req.ID,
		At:        c.now().UTC(),
	}
	return snap, change, nil
}

func (c *Coordinator) forget(ctx context.Context, key string) {
	if c.deduper == nil || key == "" {
		return
	}
	if err := c.deduper.Remove(ctx, c.boardID, key); err != nil {
		c.log.WithError(err).WithField("request", key).Error("dedupe rollback failed")
	}
}

func (c *Coordinator) mutate(b domain.Board, req protocol.Request) (domain.Board, error) {
	switch req.Event {
	case protocol.EventListReorder:
		var m domain.ListMove
		if err := req.Bind(&m); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.ApplyListMove(b, m)
	case protocol.EventCardReorder:
		var m domain.CardMove
		if err := req.Bind(&m); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.ApplyCardMove(b, m)
	case protocol.EventListCreate:
		var p protocol.ListCreate
		if err := req.Bind(&p); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.CreateList(b, c.newID(), p.Name)
	case protocol.EventListRename:
		var p protocol.ListRename
		if err := req.Bind(&p); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.RenameList(b, p.ListID, p.Name)
	case protocol.EventListDelete:
		var p protocol.ListDelete
		if err := req.Bind(&p); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.DeleteList(b, p.ListID)
	case protocol.EventCardCreate:
		var p protocol.CardCreate
		if err := req.Bind(&p); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.CreateCard(b, p.ListID, c.newID(), p.Text)
	case protocol.EventCardDelete:
		var p protocol.CardDelete
		if err := req.Bind(&p); err != nil {
			return domain.Board{}, badRequest(err)
		}
		return domain.DeleteCard(b, p.CardID)
	}
	return domain.Board{}, fmt.Errorf("event %q: %w", req.Event, protocol.ErrBadRequest)
}

func badRequest(err error) error {
	return fmt.Errorf("%v: %w", err, protocol.ErrBadRequest)
}
