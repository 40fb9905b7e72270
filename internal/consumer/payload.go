package consumer

import (
	"fmt"
)

// Reserved property keys shared by all notification-style consumers.
// They are stripped from the map before consumer-specific keys are exposed
// as additional parameters, so domain fields can never be shadowed.
const (
	KeyTaskID          = "TASK_ID"
	KeyRecipientTarget = "RECIPIENT_TARGET"
	KeyRecipientName   = "RECIPIENT_NAME"
	KeyRecipientLocale = "RECIPIENT_LOCALE"
	KeyTemplate        = "TEMPLATE"
	KeyDescription     = "DESCRIPTION"
	KeyFields          = "FIELDS"
	KeyAttachments     = "ATTACHMENTS"
)

var reservedKeys = map[string]struct{}{
	KeyTaskID:          {},
	KeyRecipientTarget: {},
	KeyRecipientName:   {},
	KeyRecipientLocale: {},
	KeyTemplate:        {},
	KeyDescription:     {},
	KeyFields:          {},
	KeyAttachments:     {},
}

// Recipient is the delivery target of a notification task.
type Recipient struct {
	Target string `json:"target"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// Payload is the strongly-typed view of a notification task's property map.
type Payload struct {
	TaskID      string
	Description string
	Recipient   Recipient
	Template    string
	Fields      map[string]string
	Attachments []string
	// Additional holds consumer-specific keys left after stripping the
	// reserved set.
	Additional map[string]any
}

// BuildPayload extracts and validates the common payload from a flattened
// property map. Missing or mistyped required keys yield a descriptive error.
func BuildPayload(properties map[string]any) (Payload, error) {
	taskID, err := requireString(properties, KeyTaskID)
	if err != nil {
		return Payload{}, err
	}
	target, err := requireString(properties, KeyRecipientTarget)
	if err != nil {
		return Payload{}, err
	}
	template, err := requireString(properties, KeyTemplate)
	if err != nil {
		return Payload{}, err
	}

	p := Payload{
		TaskID:      taskID,
		Description: optionalString(properties, KeyDescription),
		Template:    template,
		Recipient: Recipient{
			Target: target,
			Name:   optionalString(properties, KeyRecipientName),
			Locale: optionalString(properties, KeyRecipientLocale),
		},
		Fields:      toStringMap(properties[KeyFields]),
		Attachments: toStringSlice(properties[KeyAttachments]),
		Additional:  make(map[string]any),
	}
	for k, v := range properties {
		if _, reserved := reservedKeys[k]; !reserved {
			p.Additional[k] = v
		}
	}
	return p, nil
}

// ToProperties flattens a payload back into the scheduler's property map
// format. The inverse of BuildPayload for the reserved keys.
func (p Payload) ToProperties() map[string]any {
	props := map[string]any{
		KeyTaskID:          p.TaskID,
		KeyRecipientTarget: p.Recipient.Target,
		KeyRecipientName:   p.Recipient.Name,
		KeyRecipientLocale: p.Recipient.Locale,
		KeyTemplate:        p.Template,
	}
	if p.Description != "" {
		props[KeyDescription] = p.Description
	}
	if len(p.Fields) > 0 {
		props[KeyFields] = p.Fields
	}
	if len(p.Attachments) > 0 {
		props[KeyAttachments] = p.Attachments
	}
	for k, v := range p.Additional {
		if _, reserved := reservedKeys[k]; !reserved {
			props[k] = v
		}
	}
	return props
}

func requireString(properties map[string]any, key string) (string, error) {
	v, ok := properties[key]
	if !ok {
		return "", fmt.Errorf("payload is missing required key %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("payload key %q must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

func optionalString(properties map[string]any, key string) string {
	s, _ := properties[key].(string)
	return s
}

// toStringMap tolerates both map[string]string and the map[string]any shape
// that JSON round-trips through the task store produce.
func toStringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return nil
	}
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, val := range s {
			out = append(out, fmt.Sprint(val))
		}
		return out
	default:
		return nil
	}
}
