package transport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(i int) pendingMessage {
	return pendingMessage{channel: "c", body: []byte(fmt.Sprintf("m%d", i))}
}

func TestOutboundQueue_PushAndDrain(t *testing.T) {
	q := newOutboundQueue(4)

	assert.False(t, q.Push(msg(1)))
	assert.False(t, q.Push(msg(2)))
	assert.Equal(t, 2, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "m1", string(drained[0].body))
	assert.Equal(t, "m2", string(drained[1].body))
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain())
}

func TestOutboundQueue_OverflowDropsOldest(t *testing.T) {
	q := newOutboundQueue(3)

	for i := 1; i <= 3; i++ {
		assert.False(t, q.Push(msg(i)))
	}
	// 第四条挤掉最旧的 m1
	assert.True(t, q.Push(msg(4)))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "m2", string(drained[0].body))
	assert.Equal(t, "m4", string(drained[2].body))
}

func TestOutboundQueue_RequeueKeepsOrder(t *testing.T) {
	q := newOutboundQueue(8)
	q.Push(msg(3))

	// 发送失败的 m1/m2 回到队首，排在 m3 之前
	q.Requeue([]pendingMessage{msg(1), msg(2)})

	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "m1", string(drained[0].body))
	assert.Equal(t, "m2", string(drained[1].body))
	assert.Equal(t, "m3", string(drained[2].body))
}

func TestOutboundQueue_RequeueOverCapacityTruncatesOldest(t *testing.T) {
	q := newOutboundQueue(2)
	q.Push(msg(3))

	q.Requeue([]pendingMessage{msg(1), msg(2)})

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "m2", string(drained[0].body))
	assert.Equal(t, "m3", string(drained[1].body))
	assert.Equal(t, uint64(1), q.Dropped())
}
