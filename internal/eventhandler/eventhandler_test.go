package eventhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoFulfillsAndRecordsEvent(t *testing.T) {
	e := NewEcho(nil)
	data, reject, err := e.HandleEvent(context.Background(), "peer-a", []byte("hello"))
	require.NoError(t, err)
	assert.Nil(t, reject)
	assert.Equal(t, []byte("hello"), data)

	received := e.Received()
	require.Len(t, received, 1)
	assert.Equal(t, "peer-a", received[0].PeerID)
	assert.Equal(t, []byte("hello"), received[0].Content)
}
