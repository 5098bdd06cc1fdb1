package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// EventHandler receives each decoded query event. Paho calls it on its own
// goroutine, one message at a time per watch; it should return promptly.
type EventHandler func(ev Event)

// Watch subscribes handler to the query events on topic, which may use
// wildcards (Topics{}.AllQueries() watches every instance). Events that
// omit the instance are attributed to the instance level of their topic.
// Malformed payloads are logged and skipped. A watch survives reconnects;
// watching the same topic again replaces its handler.
func (c *Client) Watch(ctx context.Context, topic string, handler EventHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	cb := c.deliver(handler)
	if err := await(ctx, c.paho.Subscribe(topic, c.qos(), cb), publishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.mu.Lock()
	c.watches[topic] = cb
	c.mu.Unlock()
	return nil
}

// deliver adapts handler to paho, decoding payloads and containing panics.
func (c *Client) deliver(handler EventHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("query event handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()

		ev, err := DecodeEvent(msg.Payload())
		if err != nil {
			c.logWarn("skipping query event", "topic", msg.Topic(), "error", err)
			return
		}
		if ev.Instance == "" {
			ev.Instance = InstanceOf(msg.Topic())
		}
		handler(ev)
	}
}
