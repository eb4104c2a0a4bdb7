package wirebridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimitBytes = 512 * 1024
	pongWait       = 90 * time.Second
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Conn is one bilateral connection to a peer, carrying BTP-shaped
// envelopes over a single WebSocket. PeerID is whatever the caller of
// Bridge.ServeHTTP supplied; no handshake binds or checks it.
type Conn struct {
	PeerID string

	ws   *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	log *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingPrepare
}

// pendingPrepare is a registered outbound prepare awaiting its
// fulfill/reject, correlated by packet id.
type pendingPrepare struct {
	destination string
	amount      string
	registered  time.Time
	resultCh    chan prepareResult
}

type prepareResult struct {
	fulfill *Fulfill
	reject  *Reject
}

func newConn(peerID string, ws *websocket.Conn, log *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		PeerID:  peerID,
		ws:      ws,
		send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.String("peer", peerID)),
		pending: make(map[string]pendingPrepare),
	}
}

// Close cancels the connection's context and closes the socket,
// failing every pending prepare with REJECT T00.
func (c *Conn) Close() {
	c.cancel()
	_ = c.ws.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		select {
		case p.resultCh <- prepareResult{reject: &Reject{Code: RejectInternal, Message: "connection closed"}}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Conn) readLoop(handle func(frame []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(readLimitBytes)
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.pingLoop()

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("wirebridge read error", zap.Error(err))
			}
			return
		}
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		handle(frame)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("wirebridge ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.log.Warn("wirebridge send failed", zap.Error(err))
				return
			}
		}
	}
}

// enqueue writes frame to the send channel without blocking; if the
// channel is full the connection is considered unhealthy and closed.
func (c *Conn) enqueue(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	default:
		c.log.Warn("wirebridge send channel full, closing connection")
		c.Close()
		return fmt.Errorf("send channel full")
	}
}

// registerPending records an outbound prepare awaiting correlation,
// timing it out at expiresAt.
func (c *Conn) registerPending(packetID, destination, amount string, expiresAt time.Time) chan prepareResult {
	resultCh := make(chan prepareResult, 1)
	c.mu.Lock()
	c.pending[packetID] = pendingPrepare{destination: destination, amount: amount, registered: time.Now(), resultCh: resultCh}
	c.mu.Unlock()

	go func() {
		d := time.Until(expiresAt)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.mu.Lock()
			if _, ok := c.pending[packetID]; ok {
				delete(c.pending, packetID)
				select {
				case resultCh <- prepareResult{reject: &Reject{Code: RejectPeerUnreachable, Message: "prepare expired"}}:
				default:
				}
			}
			c.mu.Unlock()
		case <-c.ctx.Done():
		}
	}()

	return resultCh
}

// resolvePending delivers a correlated fulfill/reject to its waiter, if
// still pending (it may have already timed out).
func (c *Conn) resolvePending(packetID string, result prepareResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[packetID]
	if !ok {
		return false
	}
	delete(c.pending, packetID)
	select {
	case p.resultCh <- result:
	default:
	}
	return true
}
