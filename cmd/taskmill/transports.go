package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"taskmill/internal/consumer/email"
)

// Dev transports. They satisfy the consumer interfaces by logging the
// rendered notification instead of delivering it.

type logMailer struct{}

func (logMailer) Send(ctx context.Context, msg email.Message) error {
	log.Info().Str("to", msg.To).Strs("cc", msg.CC).Str("subject", msg.Subject).
		Int("body_bytes", len(msg.Body)).Msg("email sent (dev transport)")
	return nil
}

type logChatSender struct{}

func (logChatSender) Post(ctx context.Context, channel, text string) error {
	log.Info().Str("channel", channel).Int("text_bytes", len(text)).
		Msg("chat message posted (dev transport)")
	return nil
}

func logAction(ctx context.Context, params map[string]any) error {
	log.Info().Interface("params", params).Msg("log action fired")
	return nil
}

// fileRenderer loads <dir>/<template>-<locale>.txt (falling back to the
// bare template name) and substitutes {key} tokens from the data map.
type fileRenderer struct{ dir string }

func (r fileRenderer) Render(template, locale string, data map[string]string) (string, error) {
	candidates := []string{template}
	if locale != "" {
		candidates = []string{template + "-" + strings.ToLower(locale), template}
	}

	var body []byte
	var err error
	for _, name := range candidates {
		body, err = os.ReadFile(filepath.Join(r.dir, name+".txt"))
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("template %q (locale %q): %w", template, locale, err)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+strings.ToLower(k)+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(string(body)), nil
}
