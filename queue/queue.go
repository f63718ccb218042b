// Package queue provides backends for the exporter queue the processor
// drains. Delivery is at-least-once: a message stays visible for
// redelivery until the consumer explicitly deletes it.
package queue

import "context"

// Message is one queue delivery. ReceiptHandle identifies the delivery
// for acknowledgement and is meaningless to everything but the backend
// that produced it.
type Message struct {
	Body          []byte
	ReceiptHandle string
}

// Backend is an at-least-once message queue. Receive may return an
// empty batch when the queue is idle; the caller decides how long to
// back off. Delete acknowledges a single delivery and must only be
// called once the message's effects are durable (or the message has
// been classified as poison). Publish enqueues a raw message body and
// exists for the simulate-event command and local verification.
type Backend interface {
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
	Publish(ctx context.Context, body []byte) error
}
