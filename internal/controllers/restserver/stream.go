package restserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/responseformat"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn wraps an upgraded connection. Frames are JSON text or MessagePack
// binary, following the format the upgrade request selected.
type wsConn struct {
	conn    *websocket.Conn
	req     *http.Request
	msgType int
}

func (h *Handlers) upgrade(w http.ResponseWriter, req *http.Request) (*wsConn, context.Context, context.CancelFunc, error) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	ws := &wsConn{conn: conn, req: req, msgType: websocket.TextMessage}
	if responseformat.WantsMsgPack(req) {
		ws.msgType = websocket.BinaryMessage
	}

	// The read loop only watches for the client going away.
	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		select {
		case <-h.controller.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ws, ctx, cancel, nil
}

func (c *wsConn) send(v any) error {
	b, err := responseformat.Marshal(c.req, v)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(c.msgType, b)
}

func (c *wsConn) close(reason string) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	c.conn.Close()
}

// StreamSessionState pushes every state of the current session until it ends.
func (h *Handlers) StreamSessionState(w http.ResponseWriter, req *http.Request) {
	tr := h.controller.manager.Tracker()
	if tr == nil {
		h.fail(w, req, http.StatusNotFound, errors.New("no session has been started"))
		return
	}

	ws, ctx, cancel, err := h.upgrade(w, req)
	if err != nil {
		h.controller.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer cancel()

	states, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	id := tr.SessionID()
	for {
		select {
		case <-ctx.Done():
			ws.conn.Close()
			return
		case s, ok := <-states:
			if !ok {
				ws.close("")
				return
			}
			st := statusFromState(s, id)
			if err := ws.send(st); err != nil {
				h.controller.logger.Debugw("websocket write failed", "error", err)
				ws.conn.Close()
				return
			}
			if s.Terminal() {
				ws.close(st.State)
				return
			}
		}
	}
}

// StreamPoints pushes the points of a session as they are stored. The first
// frame carries every stored point, later frames only the new ones. A frame
// with an empty list follows a delete.
func (h *Handlers) StreamPoints(w http.ResponseWriter, req *http.Request) {
	sess, ok := h.lookupSession(w, req)
	if !ok {
		return
	}

	ws, ctx, cancel, err := h.upgrade(w, req)
	if err != nil {
		h.controller.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer cancel()

	lists, err := h.controller.store.StreamBySession(ctx, sess.ID)
	if err != nil {
		h.controller.logger.Errorw("could not stream points", "session_id", sess.ID, "error", err)
		ws.close("stream unavailable")
		return
	}

	sent := -1
	for {
		select {
		case <-ctx.Done():
			ws.conn.Close()
			return
		case points, ok := <-lists:
			if !ok {
				ws.close("")
				return
			}
			batch, next := newPoints(points, sent)
			if batch == nil {
				continue
			}
			sent = next
			if err := ws.send(batch); err != nil {
				h.controller.logger.Debugw("websocket write failed", "error", err)
				ws.conn.Close()
				return
			}
		}
	}
}

// newPoints returns the points after the first sent ones and the new sent
// count. sent is -1 before the first frame. A shrinking list restarts the count.
func newPoints(points []types.TrackPoint, sent int) ([]types.TrackPoint, int) {
	switch {
	case sent < 0:
		return append([]types.TrackPoint{}, points...), len(points)
	case len(points) < sent:
		return append([]types.TrackPoint{}, points...), len(points)
	case len(points) == sent:
		return nil, sent
	default:
		return append([]types.TrackPoint{}, points[sent:]...), len(points)
	}
}
