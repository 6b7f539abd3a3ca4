package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/docprobe/internal/probe"
	"github.com/JakeFAU/docprobe/internal/progress"
)

// Publisher delivers a payload to a named topic and returns the broker's
// message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// FoundMessage is published for each located item.
type FoundMessage struct {
	RunID string    `json:"run_id"`
	Run   string    `json:"run"`
	Item  string    `json:"item"`
	URL   string    `json:"url"`
	Bytes int64     `json:"bytes"`
	TS    time.Time `json:"ts"`
}

// NotifySink forwards found items to a Publisher. Every other event is
// ignored.
type NotifySink struct {
	pub   Publisher
	topic string
}

// NewNotifySink builds a NotifySink for the given topic.
func NewNotifySink(pub Publisher, topic string) *NotifySink {
	return &NotifySink{pub: pub, topic: topic}
}

// Consume publishes one message per found item. A failed publish does not
// stop the rest of the batch; all failures are joined into the result.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.pub == nil {
		return nil
	}
	var errs error
	for _, evt := range batch {
		if evt.Stage != progress.StageItemDone || evt.Status != probe.StatusFound {
			continue
		}
		msg := FoundMessage{
			RunID: evt.RunUUID().String(),
			Run:   evt.Run,
			Item:  evt.Item,
			URL:   evt.URL,
			Bytes: evt.Bytes,
			TS:    evt.TS,
		}
		if _, err := s.pub.Publish(ctx, s.topic, msg); err != nil {
			errs = errors.Join(errs, fmt.Errorf("publish %s: %w", evt.Item, err))
		}
	}
	return errs
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

// MessageKey partitions broker messages by item name.
func (m FoundMessage) MessageKey() string {
	return m.Item
}
