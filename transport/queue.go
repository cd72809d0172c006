package transport

import (
	"sync"
	"time"
)

// =============================================================================
// 📬 断线发送缓冲区
// =============================================================================

// pendingMessage 断线期间排队的已签名消息
type pendingMessage struct {
	channel  string
	body     []byte
	queuedAt time.Time
}

// outboundQueue 有界发送队列
// 溢出时丢弃最旧消息（at-most-once 模型下宁可丢旧不丢新）
type outboundQueue struct {
	mu       sync.Mutex
	buf      []pendingMessage
	capacity int
	dropped  uint64
}

func newOutboundQueue(capacity int) *outboundQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &outboundQueue{
		buf:      make([]pendingMessage, 0, capacity),
		capacity: capacity,
	}
}

// Push 入队，返回是否因溢出丢弃了最旧消息
func (q *outboundQueue) Push(m pendingMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.buf) >= q.capacity {
		q.buf = q.buf[1:]
		q.dropped++
		dropped = true
	}
	q.buf = append(q.buf, m)
	return dropped
}

// Drain 取出全部待发消息并清空队列
// 调用方负责发送；发送失败的消息通过 Requeue 放回队首
func (q *outboundQueue) Drain() []pendingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = make([]pendingMessage, 0, q.capacity)
	return out
}

// Requeue 将发送失败的消息放回队首，保持原有相对顺序
func (q *outboundQueue) Requeue(msgs []pendingMessage) {
	if len(msgs) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.buf = append(msgs, q.buf...)
	// 重新入队后仍可能超容量，从最旧端截断
	if over := len(q.buf) - q.capacity; over > 0 {
		q.buf = q.buf[over:]
		q.dropped += uint64(over)
	}
}

// Len 当前排队消息数
func (q *outboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped 累计丢弃数
func (q *outboundQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
