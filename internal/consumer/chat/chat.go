// Package chat posts templated messages to a chat channel (Slack-style).
package chat

import (
	"context"
	"fmt"

	"taskmill/internal/consumer"
)

// Type is the consumer-type tag used at schedule time.
const Type = "chat"

// KeyChannel is the consumer-specific payload key naming the target channel.
const KeyChannel = "CHANNEL"

// Sender posts one message to a channel.
type Sender interface {
	Post(ctx context.Context, channel, text string) error
}

// Renderer resolves and renders a notification template for a locale.
type Renderer interface {
	Render(template, locale string, data map[string]string) (string, error)
}

type Consumer struct {
	sender   Sender
	renderer Renderer
}

func Factory(sender Sender, renderer Renderer) consumer.Factory {
	return func() consumer.Consumer { return &Consumer{sender: sender, renderer: renderer} }
}

func (c *Consumer) Start(ctx context.Context, properties map[string]any) error {
	payload, err := consumer.BuildPayload(properties)
	if err != nil {
		return fmt.Errorf("chat task: %w", err)
	}

	channel, ok := payload.Additional[KeyChannel].(string)
	if !ok || channel == "" {
		return fmt.Errorf("chat task %s: payload key %q must be a non-empty string", payload.TaskID, KeyChannel)
	}

	data := make(map[string]string, len(payload.Fields)+2)
	for k, v := range payload.Fields {
		data[k] = v
	}
	data["recipient"] = payload.Recipient.Target
	data["name"] = payload.Recipient.Name

	text, err := c.renderer.Render(payload.Template, payload.Recipient.Locale, data)
	if err != nil {
		return fmt.Errorf("chat task %s: render template %q: %w", payload.TaskID, payload.Template, err)
	}

	return c.sender.Post(ctx, channel, text)
}
