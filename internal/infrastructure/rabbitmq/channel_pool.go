package rabbitmq

import (
	"errors"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPoolExhausted is returned when every pooled channel is in use.
var ErrPoolExhausted = errors.New("no channels available in pool")

// ChannelPool shares one AMQP connection across a fixed set of channels.
type ChannelPool struct {
	open      ChannelOpener
	conn      io.Closer
	channels  chan Channel
	mu        sync.Mutex
	closed    bool
	queueName string
}

// NewChannelPool dials url and pre-creates size channels, each with the queue declared.
func NewChannelPool(url, queueName string, size int) (*ChannelPool, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return newChannelPool(connOpener(conn), conn, queueName, size)
}

func newChannelPool(open ChannelOpener, conn io.Closer, queueName string, size int) (*ChannelPool, error) {
	pool := &ChannelPool{
		open:      open,
		conn:      conn,
		channels:  make(chan Channel, size),
		queueName: queueName,
	}

	for i := 0; i < size; i++ {
		ch, err := pool.createChannel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.channels <- ch
	}

	return pool, nil
}

func (p *ChannelPool) createChannel() (Channel, error) {
	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, p.queueName); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return ch, nil
}

// Get takes a channel from the pool, replacing it if the broker closed it.
func (p *ChannelPool) Get() (Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPoolExhausted
		}
		if ch.IsClosed() {
			return p.createChannel()
		}
		return ch, nil
	default:
		return nil, ErrPoolExhausted
	}
}

// Put returns a channel to the pool.
func (p *ChannelPool) Put(ch Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		_ = ch.Close()
	}
}

func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.channels)
	for ch := range p.channels {
		_ = ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
