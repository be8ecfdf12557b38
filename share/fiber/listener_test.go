package fiber

import (
	"io"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	closed atomic.Bool
}

func (s *stubChannel) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *stubChannel) Write(p []byte) (int, error) { return len(p), nil }
func (s *stubChannel) CloseWrite() error           { return nil }
func (s *stubChannel) Close() error {
	s.closed.Store(true)
	return nil
}

func TestListenerCloseReclaimsQueuedChannels(t *testing.T) {
	l := newListener(7, nil)
	queued := &stubChannel{}
	require.True(t, l.deliver(queued))

	require.NoError(t, l.Close())
	assert.True(t, queued.closed.Load(), "queued channel must not be orphaned open")

	late := &stubChannel{}
	assert.False(t, l.deliver(late), "delivery after close must be refused")

	_, err := l.Accept()
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestListenerBacklogFromEnv(t *testing.T) {
	t.Setenv("FUNNEL_CHANNEL_BACKLOG", "3")
	l := newListener(7, nil)
	assert.Equal(t, 3, cap(l.pending))
}
