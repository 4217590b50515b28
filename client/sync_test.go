package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban-sync/coordinator"
	"kanban-sync/domain"
	"kanban-sync/protocol"
	"kanban-sync/storage"
)

func startCoordinator(t *testing.T, seed domain.Snapshot) (*coordinator.Coordinator, string) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	store := storage.NewMemory()
	require.NoError(t, store.Save(context.Background(), "main", seed))

	coord, err := coordinator.New(context.Background(), coordinator.Options{
		BoardID: "main",
		Store:   store,
		Deduper: coordinator.NewMemoryDeduper(time.Minute),
		Logger:  logger,
	})
	require.NoError(t, err)

	e := echo.New()
	coordinator.Register(e, coord)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return coord, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type peer struct {
	ch   *Channel
	ctrl *Controller
}

func connectPeer(t *testing.T, url string) *peer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	store := NewSnapshotStore()
	ch := NewChannel(Options{URL: url, Store: store, Logger: logger, ReconnectMin: 10 * time.Millisecond})
	ctrl := NewController(ch, store, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	require.NoError(t, ch.Open(ctx))
	t.Cleanup(func() {
		cancel()
		ctrl.Close()
		_ = ch.Close()
	})

	select {
	case <-ctrl.Synced():
	case <-time.After(2 * time.Second):
		t.Fatal("peer never synced")
	}
	return &peer{ch: ch, ctrl: ctrl}
}

func TestTwoClientsConvergeOnConcurrentListMoves(t *testing.T) {
	coord, url := startCoordinator(t, withLists(1, "L1", "L2", "L3"))
	a := connectPeer(t, url)
	b := connectPeer(t, url)
	ctx := context.Background()

	require.NoError(t, a.ctrl.ApplyListMove(ctx, 0, 2))
	require.NoError(t, b.ctrl.ApplyListMove(ctx, 2, 0))

	require.Eventually(t, func() bool {
		canonical := coord.Snapshot()
		if canonical.Version != 3 {
			return false
		}
		for _, p := range []*peer{a, b} {
			if p.ctrl.Pending() || p.ctrl.Version() != 3 || !p.ctrl.Board().Equal(canonical.Board) {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, len(coord.Snapshot().Board.Lists))
}

func TestChannelRejectionCarriesCanonicalSnapshot(t *testing.T) {
	_, url := startCoordinator(t, withLists(1, "L1", "L2", "L3"))
	p := connectPeer(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	call, err := p.ch.SendListReorder(ctx, 5, 0)
	require.NoError(t, err)
	snap, err := call.Wait(ctx)
	require.ErrorIs(t, err, domain.ErrIndexOutOfRange)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, []string{"L1", "L2", "L3"}, listIDs(snap.Board))
}

func TestChannelCreateAndDeleteRoundTrip(t *testing.T) {
	coord, url := startCoordinator(t, withLists(1, "L1"))
	p := connectPeer(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	call, err := p.ch.SendCreateCard(ctx, "L1", "new card")
	require.NoError(t, err)
	snap, err := call.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Board.Lists[0].Cards, 3)
	created := snap.Board.Lists[0].Cards[2]
	assert.Equal(t, "new card", created.Text)

	call, err = p.ch.SendDeleteCard(ctx, created.ID)
	require.NoError(t, err)
	snap, err = call.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Board.Lists[0].Cards, 2)
	assert.Equal(t, coord.Snapshot().Version, snap.Version)

	latest, ok := p.ch.Store().Latest()
	require.True(t, ok)
	assert.GreaterOrEqual(t, latest.Version, snap.Version)
}

func TestChannelSendBeforeConnectFails(t *testing.T) {
	ch := NewChannel(Options{URL: "ws://127.0.0.1:1/ws"})
	_, err := ch.SendCreateList(context.Background(), "x")
	require.ErrorIs(t, err, ErrConnectionLost)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	_, err = ch.SendCreateList(context.Background(), "x")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, ch.Open(context.Background()), ErrClosed)
}

func TestChannelCloseFailsOutstandingCalls(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req, _ := protocol.DecodeRequest(data)
		snap := withLists(1, "L1")
		out, _ := protocol.Encode(protocol.Message{ID: req.ID, Event: req.Event, Snapshot: &snap})
		_ = conn.WriteMessage(websocket.TextMessage, out)
		// never answer anything else
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger, _ := logtest.NewNullLogger()
	ch := NewChannel(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: logger})
	sub := ch.Subscribe()
	require.NoError(t, ch.Open(context.Background()))

	select {
	case ev := <-sub.C():
		require.Equal(t, EventSynced, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no sync event")
	}

	call, err := ch.SendListReorder(context.Background(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, ch.Close())

	select {
	case res := <-call.Done():
		assert.ErrorIs(t, res.Err, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("call never resolved")
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription not closed")
	}
}

func TestChannelReconnectsAndResyncs(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req, _ := protocol.DecodeRequest(data)
		snap := withLists(uint64(10/n), "L1")
		out, _ := protocol.Encode(protocol.Message{ID: req.ID, Event: req.Event, Snapshot: &snap})
		_ = conn.WriteMessage(websocket.TextMessage, out)
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger, _ := logtest.NewNullLogger()
	ch := NewChannel(Options{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger:       logger,
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	})
	defer ch.Close()
	sub := ch.Subscribe()
	require.NoError(t, ch.Open(context.Background()))

	var kinds []EventKind
	timeout := time.After(3 * time.Second)
	for len(kinds) < 3 {
		select {
		case ev := <-sub.C():
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("events so far: %v", kinds)
		}
	}
	assert.Equal(t, []EventKind{EventSynced, EventDisconnected, EventSynced}, kinds)

	// the second coordinator reports a lower version; sync accepts it
	latest, ok := ch.Store().Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Version)
}
