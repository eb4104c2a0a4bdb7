// Package eventhandler provides a minimal EventHandler implementation.
// The full note/follow/query application layer lives outside this
// subsystem's scope; this stand-in accepts every event and echoes it
// back, giving the Wire Bridge something concrete to dispatch into, and
// serving as the reference implementation for tests.
package eventhandler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/wirebridge"
)

// Echo is a trivial EventHandler that always fulfills, returning the
// inner content unchanged as fulfill data, and records every delivered
// event for inspection.
type Echo struct {
	log *zap.Logger

	mu       sync.Mutex
	received []ReceivedEvent
}

// ReceivedEvent is one delivered (peerID, content) pair, kept for test
// assertions and operator introspection.
type ReceivedEvent struct {
	PeerID  string
	Content []byte
}

func NewEcho(log *zap.Logger) *Echo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Echo{log: log}
}

// HandleEvent implements wirebridge.EventHandler.
func (e *Echo) HandleEvent(ctx context.Context, peerID string, innerContent []byte) ([]byte, *wirebridge.Reject, error) {
	e.mu.Lock()
	e.received = append(e.received, ReceivedEvent{PeerID: peerID, Content: append([]byte(nil), innerContent...)})
	e.mu.Unlock()

	e.log.Debug("eventhandler: delivered event", zap.String("peer", peerID), zap.Int("bytes", len(innerContent)))
	return innerContent, nil, nil
}

// Received returns every event delivered so far, in order.
func (e *Echo) Received() []ReceivedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ReceivedEvent(nil), e.received...)
}
