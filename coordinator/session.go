package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/protocol"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	replyBuffer = 64
)

// session is one connected client. The reader applies requests in arrival
// order and queues replies; the writer interleaves those replies with
// UPDATE pushes for every snapshot newer than the last one it pushed.
type session struct {
	id      string
	conn    *websocket.Conn
	coord   *Coordinator
	log     *log.Entry
	replies chan protocol.Message
}

func newSession(conn *websocket.Conn, coord *Coordinator) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		conn:    conn,
		coord:   coord,
		log:     coord.log.WithFields(log.Fields{"session": id, "board": coord.boardID}),
		replies: make(chan protocol.Message, replyBuffer),
	}
}

// run blocks until the connection closes or ctx is cancelled.
func (s *session) run(ctx context.Context) {
	hub := s.coord.hub
	notify := hub.Subscribe()
	defer hub.Unsubscribe(notify)

	var lastPushed uint64
	if latest, ok := hub.Latest(); ok {
		lastPushed = latest.Version
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("session connected")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx)
	}()

	if err := s.writeLoop(ctx, notify, lastPushed); err != nil {
		s.log.WithError(err).Debug("session writer stopped")
	}
	cancel()
	_ = s.conn.Close()
	wg.Wait()
	s.log.Info("session disconnected")
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(protocol.MaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		msg := s.handle(ctx, data)
		select {
		case s.replies <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) handle(ctx context.Context, data []byte) protocol.Message {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		s.log.WithError(err).Warn("rejecting malformed frame")
		snap := s.coord.Snapshot()
		return protocol.Message{
			Event:    protocol.EventError,
			Snapshot: &snap,
			Error:    protocol.NewRemoteError(fmt.Errorf("%v: %w", err, protocol.ErrBadRequest)),
		}
	}

	snap, err := s.coord.Apply(ctx, req)
	msg := protocol.Message{ID: req.ID, Event: req.Event, Snapshot: &snap}
	if err != nil {
		entry := s.log.WithError(err).WithFields(log.Fields{"request": req.ID, "event": req.Event})
		if protocol.CodeFor(err) == protocol.CodeInternal {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}
		msg.Error = protocol.NewRemoteError(err)
	}
	return msg
}

func (s *session) writeLoop(ctx context.Context, notify <-chan struct{}, lastPushed uint64) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case msg := <-s.replies:
			if err := s.write(msg); err != nil {
				return err
			}
		case <-notify:
			latest, ok := s.coord.hub.Latest()
			if !ok || latest.Version <= lastPushed {
				continue
			}
			if err := s.push(latest); err != nil {
				return err
			}
			lastPushed = latest.Version
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("failed to ping: %w", err)
			}
		}
	}
}

func (s *session) push(snap domain.Snapshot) error {
	return s.write(protocol.Message{Event: protocol.EventUpdate, Snapshot: &snap})
}

func (s *session) write(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Event, err)
	}
	if len(data) > protocol.MaxFrameSize {
		return errors.New("message exceeds max frame size")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
