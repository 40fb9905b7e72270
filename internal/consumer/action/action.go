// Package action runs arbitrary registered callbacks as scheduled tasks,
// for schedulable work that is not a notification.
package action

import (
	"context"
	"fmt"

	"taskmill/internal/consumer"
)

// Type is the consumer-type tag used at schedule time.
const Type = "action"

// Payload keys. ACTION is required and names the registered callback.
const (
	KeyAction = "ACTION"
)

// Func is a registered action callback. Parameters are the task's
// consumer-specific properties.
type Func func(ctx context.Context, params map[string]any) error

// Table is the set of named actions available to scheduled tasks.
type Table map[string]Func

type Consumer struct {
	actions Table
}

func Factory(actions Table) consumer.Factory {
	return func() consumer.Consumer { return &Consumer{actions: actions} }
}

func (c *Consumer) Start(ctx context.Context, properties map[string]any) error {
	taskID, _ := properties[consumer.KeyTaskID].(string)
	name, ok := properties[KeyAction].(string)
	if !ok || name == "" {
		return fmt.Errorf("action task %s: payload key %q must be a non-empty string", taskID, KeyAction)
	}
	fn, ok := c.actions[name]
	if !ok {
		return fmt.Errorf("action task %s: no action registered as %q", taskID, name)
	}

	params := make(map[string]any, len(properties))
	for k, v := range properties {
		if k == consumer.KeyTaskID || k == KeyAction {
			continue
		}
		params[k] = v
	}
	return fn(ctx, params)
}
