// Package email sends templated email notifications. The SMTP transport and
// the template engine live behind interfaces; this package only shapes the
// message from the task payload.
package email

import (
	"context"
	"fmt"

	"taskmill/internal/consumer"
)

// Type is the consumer-type tag used at schedule time.
const Type = "email"

// Consumer-specific payload keys, surfaced through Payload.Additional.
const (
	KeySubject = "SUBJECT"
	KeyCC      = "CC"
)

// Message is a fully rendered outbound email.
type Message struct {
	To          string
	CC          []string
	Subject     string
	Body        string
	Attachments []string
}

// Mailer delivers a rendered message. Implementations own their I/O
// timeouts; the engine does not bound consumer execution.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer resolves and renders a notification template for a locale.
type Renderer interface {
	Render(template, locale string, data map[string]string) (string, error)
}

type Consumer struct {
	mailer   Mailer
	renderer Renderer
}

// Factory returns a consumer.Factory producing isolated instances bound to
// the given transport and renderer.
func Factory(mailer Mailer, renderer Renderer) consumer.Factory {
	return func() consumer.Consumer { return &Consumer{mailer: mailer, renderer: renderer} }
}

func (c *Consumer) Start(ctx context.Context, properties map[string]any) error {
	payload, err := consumer.BuildPayload(properties)
	if err != nil {
		return fmt.Errorf("email task: %w", err)
	}

	subject, ok := payload.Additional[KeySubject].(string)
	if !ok || subject == "" {
		return fmt.Errorf("email task %s: payload key %q must be a non-empty string", payload.TaskID, KeySubject)
	}

	data := make(map[string]string, len(payload.Fields)+2)
	for k, v := range payload.Fields {
		data[k] = v
	}
	data["recipient"] = payload.Recipient.Target
	data["name"] = payload.Recipient.Name

	body, err := c.renderer.Render(payload.Template, payload.Recipient.Locale, data)
	if err != nil {
		return fmt.Errorf("email task %s: render template %q: %w", payload.TaskID, payload.Template, err)
	}

	return c.mailer.Send(ctx, Message{
		To:          payload.Recipient.Target,
		CC:          ccList(payload.Additional[KeyCC]),
		Subject:     subject,
		Body:        body,
		Attachments: payload.Attachments,
	})
}

func ccList(v any) []string {
	switch cc := v.(type) {
	case []string:
		return cc
	case []any:
		out := make([]string, 0, len(cc))
		for _, addr := range cc {
			out = append(out, fmt.Sprint(addr))
		}
		return out
	default:
		return nil
	}
}
