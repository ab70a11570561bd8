package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer buffers messages in memory and writes them from one goroutine.
// Publish never waits on the broker; when the buffer is full the message is
// dropped and logged.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	p := &Producer{
		inbox: make(chan kafka.Message, buf),
		log:   log,
		done:  make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// Run writes buffered messages until ctx is done, then flushes what is left
// and closes the writer.
func (p *Producer) Run(ctx context.Context) error {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.closed = true
			close(p.inbox)
			p.mu.Unlock()
			for m := range p.inbox {
				p.write(m)
			}
			return p.w.Close()
		case m := <-p.inbox:
			p.write(m)
		}
	}
}

// Publish queues one message for topic. Partitioning hashes key.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("producer closed, event dropped", zap.String("topic", topic), zap.ByteString("key", key))
		return
	}
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
	default:
		p.log.Warn("producer buffer full, event dropped", zap.String("topic", topic), zap.ByteString("key", key))
	}
}

// Wait blocks until Run has flushed and returned.
func (p *Producer) Wait() { <-p.done }

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("kafka write failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

func (p *Producer) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.log.Error("kafka delivery failed", zap.String("topic", m.Topic), zap.ByteString("key", m.Key), zap.Error(err))
	}
}
