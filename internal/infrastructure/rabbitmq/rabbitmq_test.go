package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueue = "ec-shop-events"

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	prefetch   int
	deliveries chan amqp.Delivery
	published  []publishCall
	publishErr error
	declareErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 10)}
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeConn hands out fake channels and remembers every one it opened.
type fakeConn struct {
	mu       sync.Mutex
	opened   []*fakeChannel
	openErr  error
	failFrom int
	closed   bool
}

func (c *fakeConn) open() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil && len(c.opened) >= c.failFrom {
		return nil, c.openErr
	}
	ch := newFakeChannel()
	c.opened = append(c.opened, ch)
	return ch, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type nackCall struct {
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []nackCall
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// ============================================
// ChannelPool Tests
// ============================================

func TestChannelPool_GetPut(t *testing.T) {
	conn := &fakeConn{}
	pool, err := newChannelPool(conn.open, conn, testQueue, 2)
	require.NoError(t, err)
	defer pool.Close()

	require.Len(t, conn.opened, 2)
	for _, ch := range conn.opened {
		assert.Equal(t, []string{testQueue}, ch.declared)
	}

	first, err := pool.Get()
	require.NoError(t, err)
	second, err := pool.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	pool.Put(first)
	again, err := pool.Get()
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestChannelPool_ReplacesClosedChannel(t *testing.T) {
	conn := &fakeConn{}
	pool, err := newChannelPool(conn.open, conn, testQueue, 1)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, conn.opened[0].Close())

	ch, err := pool.Get()
	require.NoError(t, err)
	require.Len(t, conn.opened, 2)
	assert.Same(t, conn.opened[1], ch)
	assert.Equal(t, []string{testQueue}, conn.opened[1].declared)
}

func TestChannelPool_PutDropsClosedAndSurplusChannels(t *testing.T) {
	conn := &fakeConn{}
	pool, err := newChannelPool(conn.open, conn, testQueue, 1)
	require.NoError(t, err)
	defer pool.Close()

	ch, err := pool.Get()
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	pool.Put(ch)

	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	pool.Put(newFakeChannel())
	surplus := newFakeChannel()
	pool.Put(surplus)
	assert.True(t, surplus.IsClosed())
}

func TestChannelPool_Close(t *testing.T) {
	conn := &fakeConn{}
	pool, err := newChannelPool(conn.open, conn, testQueue, 2)
	require.NoError(t, err)

	borrowed, err := pool.Get()
	require.NoError(t, err)

	pool.Close()
	pool.Close()

	assert.True(t, conn.closed)
	assert.True(t, conn.opened[1].IsClosed())

	pool.Put(borrowed)
	assert.True(t, borrowed.IsClosed())

	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestChannelPool_OpenFailure(t *testing.T) {
	conn := &fakeConn{openErr: errors.New("channel limit"), failFrom: 1}

	_, err := newChannelPool(conn.open, conn, testQueue, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel limit")
	assert.True(t, conn.closed)
	assert.True(t, conn.opened[0].IsClosed())
}

// ============================================
// Publisher Tests
// ============================================

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	pool, err := newChannelPool(conn.open, conn, testQueue, 1)
	require.NoError(t, err)
	defer pool.Close()
	publisher := NewPublisher(pool, testQueue)

	event := map[string]string{"type": "OrderCreated", "orderId": "order-1"}
	require.NoError(t, publisher.Publish(context.Background(), "order-1", event))

	ch := conn.opened[0]
	require.Len(t, ch.published, 1)
	call := ch.published[0]
	assert.Equal(t, "", call.exchange)
	assert.Equal(t, testQueue, call.key)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.Equal(t, "application/json", call.msg.ContentType)
	assert.Equal(t, "order-1", call.msg.MessageId)
	assert.False(t, call.msg.Timestamp.IsZero())

	var body map[string]string
	require.NoError(t, json.Unmarshal(call.msg.Body, &body))
	assert.Equal(t, event, body)

	// the channel went back to the pool
	_, err = pool.Get()
	assert.NoError(t, err)
}

func TestPublisher_Errors(t *testing.T) {
	t.Run("broker rejects", func(t *testing.T) {
		conn := &fakeConn{}
		pool, err := newChannelPool(conn.open, conn, testQueue, 1)
		require.NoError(t, err)
		defer pool.Close()
		conn.opened[0].publishErr = errors.New("connection reset")

		err = NewPublisher(pool, testQueue).Publish(context.Background(), "order-1", map[string]string{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		_, err = pool.Get()
		assert.NoError(t, err)
	})

	t.Run("unencodable event", func(t *testing.T) {
		conn := &fakeConn{}
		pool, err := newChannelPool(conn.open, conn, testQueue, 1)
		require.NoError(t, err)
		defer pool.Close()

		err = NewPublisher(pool, testQueue).Publish(context.Background(), "order-1", make(chan int))
		require.Error(t, err)
		assert.Empty(t, conn.opened[0].published)
	})

	t.Run("pool exhausted", func(t *testing.T) {
		conn := &fakeConn{}
		pool, err := newChannelPool(conn.open, conn, testQueue, 1)
		require.NoError(t, err)
		defer pool.Close()
		_, err = pool.Get()
		require.NoError(t, err)

		err = NewPublisher(pool, testQueue).Publish(context.Background(), "order-1", map[string]string{})
		assert.ErrorIs(t, err, ErrPoolExhausted)
	})
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_AcksHandledAndNacksFailed(t *testing.T) {
	conn := &fakeConn{}
	ack := &fakeAcknowledger{}
	consumer := newConsumer(conn.open, testQueue, nil)

	// prime the channel the consumer is about to open
	ch := newFakeChannel()
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, MessageId: "order-1", Body: []byte(`{"ok":true}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, MessageId: "order-2", Body: []byte(`{"ok":false}`)}
	close(ch.deliveries)
	consumer.open = func() (Channel, error) { return ch, nil }

	var keys []string
	err := consumer.Consume(context.Background(), func(ctx context.Context, key, value []byte) error {
		keys = append(keys, string(key))
		if string(value) == `{"ok":false}` {
			return errors.New("smtp down")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery channel closed")

	assert.Equal(t, []string{"order-1", "order-2"}, keys)
	assert.Equal(t, []uint64{1}, ack.acks)
	assert.Equal(t, []nackCall{{tag: 2, requeue: false}}, ack.nacks)
	assert.Equal(t, []string{testQueue}, ch.declared)
	assert.Equal(t, 10, ch.prefetch)
	assert.True(t, ch.IsClosed())
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	conn := &fakeConn{}
	consumer := newConsumer(conn.open, testQueue, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, func(ctx context.Context, key, value []byte) error { return nil })
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConsumer_SetupErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		conn := &fakeConn{openErr: errors.New("connection closed")}
		err := newConsumer(conn.open, testQueue, nil).Consume(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open channel")
	})

	t.Run("declare", func(t *testing.T) {
		ch := newFakeChannel()
		ch.declareErr = errors.New("access refused")
		err := newConsumer(func() (Channel, error) { return ch, nil }, testQueue, nil).Consume(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to declare queue")
		assert.True(t, ch.IsClosed())
	})
}
