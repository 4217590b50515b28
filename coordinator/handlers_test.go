package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"kanban-sync/domain"
	"kanban-sync/protocol"
)

func startServer(t *testing.T, c *Coordinator) string {
	t.Helper()
	e := echo.New()
	Register(e, c)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req protocol.Request) {
	t.Helper()
	data, err := protocol.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

// receiveReply skips UPDATE pushes until the reply to id arrives.
func receiveReply(t *testing.T, conn *websocket.Conn, id string) protocol.Message {
	t.Helper()
	for {
		msg := receive(t, conn)
		if msg.ID == id {
			return msg
		}
	}
}

func TestGetBoardHandler(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	e := echo.New()
	Register(e, c)

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Version != 1 || len(snap.Board.Lists) != 3 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"board":"main"`) {
		t.Fatalf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSocketReplyAndBroadcast(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	url := startServer(t, c)
	a := dial(t, url)
	b := dial(t, url)

	get := mustRequest(t, protocol.EventGet, nil)
	send(t, b, get)
	if msg := receiveReply(t, b, get.ID); msg.Snapshot == nil || msg.Snapshot.Version != 1 {
		t.Fatalf("unexpected sync reply %#v", msg)
	}

	move := mustRequest(t, protocol.EventListReorder, domain.ListMove{SourceIndex: 0, DestinationIndex: 2})
	send(t, a, move)
	reply := receiveReply(t, a, move.ID)
	if reply.Error != nil || reply.Snapshot == nil || reply.Snapshot.Version != 2 {
		t.Fatalf("unexpected reply %#v", reply)
	}
	if reply.Event != protocol.EventListReorder {
		t.Fatalf("reply should echo the event, got %s", reply.Event)
	}

	push := receive(t, b)
	if push.Event != protocol.EventUpdate || push.ID != "" || push.Snapshot == nil || push.Snapshot.Version != 2 {
		t.Fatalf("expected UPDATE v2 for the other client, got %#v", push)
	}
	if !push.Snapshot.Board.Equal(reply.Snapshot.Board) {
		t.Fatalf("broadcast board differs from reply")
	}
}

func TestSocketRejectedRequestCarriesSnapshot(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	conn := dial(t, startServer(t, c))

	req := mustRequest(t, protocol.EventListRename, protocol.ListRename{ListID: "missing", Name: "x"})
	send(t, conn, req)
	reply := receiveReply(t, conn, req.ID)
	if reply.Error == nil || reply.Error.Code != protocol.CodeListNotFound {
		t.Fatalf("expected LIST_NOT_FOUND, got %#v", reply.Error)
	}
	if reply.Snapshot == nil || reply.Snapshot.Version != 1 {
		t.Fatalf("rejection should carry the canonical snapshot, got %#v", reply.Snapshot)
	}
}

func TestSocketMalformedFrame(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	conn := dial(t, startServer(t, c))

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := receive(t, conn)
	if msg.Event != protocol.EventError || msg.Error == nil || msg.Error.Code != protocol.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST error, got %#v", msg)
	}

	// the session stays usable
	get := mustRequest(t, protocol.EventGet, nil)
	send(t, conn, get)
	if reply := receiveReply(t, conn, get.ID); reply.Snapshot == nil {
		t.Fatalf("expected snapshot after malformed frame")
	}
}

func TestSessionUnsubscribesOnDisconnect(t *testing.T) {
	c := newTestCoordinator(t, Options{})
	conn := dial(t, startServer(t, c))

	get := mustRequest(t, protocol.EventGet, nil)
	send(t, conn, get)
	receiveReply(t, conn, get.ID)
	if c.Hub().Len() != 1 {
		t.Fatalf("expected one session, got %d", c.Hub().Len())
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for c.Hub().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not released")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := c.Apply(context.Background(), mustRequest(t, protocol.EventListReorder, domain.ListMove{SourceIndex: 0, DestinationIndex: 1})); err != nil {
		t.Fatalf("apply after disconnect: %v", err)
	}
}
