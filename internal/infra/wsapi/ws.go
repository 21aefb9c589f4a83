package wsapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/player"
	"github.com/ysrdora/nextframe/internal/usecase"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Operations a client can request.
const (
	opToggle    = "toggle"
	opSeek      = "seek"
	opSeekTo    = "seekTo"
	opStep      = "step"
	opCapture   = "capture"
	opCaptureAt = "captureAt"
	opBatch     = "batch"
	opKey       = "key"
	opRemove    = "remove"
	opClear     = "clear"
)

// clientMessage is one request read from the socket. Only the fields the
// op needs are looked at.
type clientMessage struct {
	Op        string  `json:"op"`
	Percent   float64 `json:"percent"`
	Seconds   float64 `json:"seconds"`
	Direction int     `json:"direction"`
	Key       string  `json:"key"`
	ID        string  `json:"id"`
}

type stateMessage struct {
	Type  string       `json:"type"`
	State player.State `json:"state"`
}

type frameMessage struct {
	Type  string    `json:"type"`
	Frame frameView `json:"frame"`
}

type galleryMessage struct {
	Type   string      `json:"type"`
	Frames []frameView `json:"frames"`
}

type flashMessage struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}

func framesMessage(sess *usecase.Session) galleryMessage {
	return galleryMessage{Type: "frames", Frames: viewsOf(sess.Gallery().Items())}
}

// peer is one websocket client. gorilla connections allow a single
// concurrent writer.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(v)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.With(zap.String("session_id", e.session.ID()))
	p := &peer{conn: conn}
	if !e.join(p) {
		return
	}
	defer e.leave(p)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	var pending sync.WaitGroup
	defer func() {
		cancel()
		pending.Wait()
	}()

	if err := p.send(framesMessage(e.session)); err != nil {
		return
	}

	states, unsubscribe := e.session.Tracker().Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-states:
				if err := p.send(stateMessage{Type: "state", State: st}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	log.Debug("websocket connected")
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if slowOp(msg.Op) {
			pending.Add(1)
			go func(msg clientMessage) {
				defer pending.Done()
				s.dispatch(ctx, e, p, msg)
			}(msg)
			continue
		}
		s.dispatch(ctx, e, p, msg)
	}
}

// slowOp reports ops that wait on decoding. They run beside the read loop
// so transport requests keep flowing meanwhile.
func slowOp(op string) bool {
	switch op {
	case opSeekTo, opCaptureAt, opBatch:
		return true
	}
	return false
}

// dispatch runs one client request. Captured frames go to every peer of
// the session; errors only to the requester.
func (s *Server) dispatch(ctx context.Context, e *entry, p *peer, msg clientMessage) {
	sess := e.session
	fail := func(err string) {
		_ = p.send(errorMessage{Type: "error", Op: msg.Op, Error: err})
	}

	switch msg.Op {
	case opToggle:
		sess.TogglePlay()
	case opSeek:
		sess.Seek(msg.Percent)
	case opSeekTo:
		if err := sess.SeekTo(ctx, msg.Seconds); err != nil {
			fail(err.Error())
		}
	case opStep:
		dir := player.Forward
		if msg.Direction < 0 {
			dir = player.Backward
		}
		sess.StepFrame(dir)
	case opKey:
		sess.HandleKey(msg.Key)
	case opCapture:
		if item := sess.Capture(ctx); item != nil {
			e.broadcast(frameMessage{Type: "frame", Frame: viewOf(*item)})
		}
	case opCaptureAt:
		item, err := sess.CaptureAt(ctx, msg.Seconds)
		if err != nil {
			fail(err.Error())
			return
		}
		if item != nil {
			e.broadcast(frameMessage{Type: "frame", Frame: viewOf(*item)})
		}
	case opBatch:
		for _, item := range sess.BatchCapture(ctx) {
			e.broadcast(frameMessage{Type: "frame", Frame: viewOf(item)})
		}
	case opRemove:
		id, err := uuid.Parse(msg.ID)
		if err != nil {
			fail("invalid frame id")
			return
		}
		if sess.RemoveFrame(ctx, id) {
			e.broadcast(framesMessage(sess))
		}
	case opClear:
		sess.ClearFrames(ctx)
		e.broadcast(framesMessage(sess))
	default:
		fail("unknown op")
	}
}
