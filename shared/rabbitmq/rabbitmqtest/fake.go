// Package rabbitmqtest provides in-memory stand-ins for the broker
// connection, channel and delivery acknowledger.
package rabbitmqtest

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/recording-worker/shared/rabbitmq"
)

// QueueDeclaration records one QueueDeclare call
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// QosCall records one Qos call
type QosCall struct {
	PrefetchCount int
	PrefetchSize  int
	Global        bool
}

// Channel is a fake rabbitmq.Channel
type Channel struct {
	mu sync.Mutex

	Declarations []QueueDeclaration
	QosCalls     []QosCall
	Published    []amqp.Publishing
	ConsumerTags []string
	CloseCalls   int

	DeclareErr error
	QosErr     error
	ConsumeErr error
	PublishErr error
	CloseErr   error

	// Deliveries is returned from Consume and closed by Close
	Deliveries chan amqp.Delivery

	notify []chan *amqp.Error
	closed bool
}

// NewChannel returns a channel with a buffered delivery queue
func NewChannel() *Channel {
	return &Channel{Deliveries: make(chan amqp.Delivery, 16)}
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Declarations = append(c.Declarations, QueueDeclaration{
		Name:       name,
		Durable:    durable,
		AutoDelete: autoDelete,
		Exclusive:  exclusive,
	})
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QosCalls = append(c.QosCalls, QosCall{PrefetchCount: prefetchCount, PrefetchSize: prefetchSize, Global: global})
	return c.QosErr
}

func (c *Channel) Consume(_, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConsumerTags = append(c.ConsumerTags, consumer)
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	return c.Deliveries, nil
}

func (c *Channel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.Published = append(c.Published, msg)
	return nil
}

func (c *Channel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, ch)
	return ch
}

// Close closes the delivery and notification channels on the first call
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	if !c.closed {
		c.closed = true
		close(c.Deliveries)
		for _, ch := range c.notify {
			close(ch)
		}
	}
	return c.CloseErr
}

// Fail simulates the broker closing the channel with an error
func (c *Channel) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.notify {
		ch <- &amqp.Error{Code: amqp.ChannelError, Reason: reason}
		close(ch)
	}
	close(c.Deliveries)
}

// Connection is a fake rabbitmq.Connection
type Connection struct {
	mu sync.Mutex

	FakeChannel *Channel
	ChannelErr  error
	CloseErr    error
	CloseCalls  int
	closed      bool

	// Order records "channel" and "connection" close events in sequence
	Order *[]string
}

func (c *Connection) Channel() (rabbitmq.Channel, error) {
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	return &orderedChannel{Channel: c.FakeChannel, order: c.Order}, nil
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	c.closed = true
	if c.Order != nil {
		*c.Order = append(*c.Order, "connection")
	}
	return c.CloseErr
}

type orderedChannel struct {
	*Channel
	order *[]string
}

func (c *orderedChannel) Close() error {
	if c.order != nil {
		*c.order = append(*c.order, "channel")
	}
	return c.Channel.Close()
}

// Dialer returns a DialFunc that hands out conn and records the URI
func Dialer(conn *Connection, uris *[]string) rabbitmq.DialFunc {
	return func(uri string, _ amqp.Config) (rabbitmq.Connection, error) {
		if uris != nil {
			*uris = append(*uris, uri)
		}
		return conn, nil
	}
}

// Acknowledger records the terminal resolution of deliveries
type Acknowledger struct {
	mu sync.Mutex

	Acks    []uint64
	Nacks   []uint64
	Requeue []bool
	Err     error
}

func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acks = append(a.Acks, tag)
	return a.Err
}

func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacks = append(a.Nacks, tag)
	a.Requeue = append(a.Requeue, requeue)
	return a.Err
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Resolutions returns the number of acks and nacks seen
func (a *Acknowledger) Resolutions() (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Acks), len(a.Nacks)
}

// Delivery builds a delivery bound to ack
func Delivery(ack *Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         body,
		ContentType:  "application/json",
	}
}
