// Package bus carries batch pipeline events between the API and workers.
package bus

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// ErrPayloadTooLarge is returned when the transport cannot carry a payload
// in one message.
var ErrPayloadTooLarge = errors.New("payload exceeds the bus message limit")

// ErrNoSubscribers is returned by the in-process bus when nothing listens
// on the topic.
var ErrNoSubscribers = errors.New("no subscribers")

// ErrBufferFull is returned when a subscriber could not take the message.
var ErrBufferFull = errors.New("subscriber buffer full")

// New creates an event bus based on configuration.
// "channel" keeps everything in-process; "nats" lets several hosts share workers.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
