// Package notify expands one multi-recipient notification request into
// independently scheduled, independently audited tasks.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskmill/internal/consumer"
	"taskmill/internal/domain"
	"taskmill/internal/scheduler"
)

// TaskScheduler is the slice of the engine the fan-out needs.
type TaskScheduler interface {
	Schedule(ctx context.Context, req scheduler.Request) (domain.TaskKey, error)
}

// Request is one inbound notification to fan out. ConsumerType selects the
// delivery consumer (email, chat); Extra carries its consumer-specific keys
// (subject, cc, channel).
type Request struct {
	ID           uuid.UUID            `json:"id"`
	ConsumerType string               `json:"consumer_type"`
	Schedule     domain.Schedule      `json:"-"`
	Description  string               `json:"description,omitempty"`
	Recipients   []consumer.Recipient `json:"recipients"`
	Template     string               `json:"template"`
	Fields       map[string]string    `json:"fields,omitempty"`
	Attachments  []string             `json:"attachments,omitempty"`
	Extra        map[string]any       `json:"extra,omitempty"`
}

// Validate enforces the fan-out preconditions.
func (r Request) Validate() error {
	if len(r.Recipients) == 0 {
		return domain.ErrEmptyRecipients
	}
	if r.Template == "" {
		return domain.ErrMissingTemplate
	}
	return nil
}

// Result reports the outcome of scheduling one recipient's task.
type Result struct {
	Recipient consumer.Recipient `json:"recipient"`
	Key       domain.TaskKey     `json:"key,omitempty"`
	Err       error              `json:"-"`
	Error     string             `json:"error,omitempty"`
}

// Service schedules notification requests through the engine.
type Service struct {
	log       zerolog.Logger
	scheduler TaskScheduler
}

func NewService(log zerolog.Logger, s TaskScheduler) *Service {
	return &Service{log: log.With().Str("component", "notify").Logger(), scheduler: s}
}

// Schedule fans the request out to one task per recipient. Scheduling is
// deliberately not atomic across recipients: a failure for one recipient is
// reported in its Result and the remaining recipients are still scheduled.
func (s *Service) Schedule(ctx context.Context, req Request) ([]Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	results := make([]Result, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		key := domain.TaskKey{
			// All of a request's tasks share its id as the group; the
			// recipient target discriminates the task name.
			Name:  recipient.Target,
			Group: req.ID.String(),
		}
		schedReq := scheduler.Request{
			Key:          key,
			ConsumerType: req.ConsumerType,
			Schedule:     req.Schedule,
			Properties:   s.properties(req, recipient),
		}

		result := Result{Recipient: recipient}
		if k, err := s.scheduler.Schedule(ctx, schedReq); err != nil {
			result.Err = err
			result.Error = err.Error()
			s.log.Error().Err(err).Str("recipient", recipient.Target).
				Str("request_id", req.ID.String()).Msg("recipient scheduling failed")
		} else {
			result.Key = k
			s.log.Debug().Str("recipient", recipient.Target).
				Stringer("task", k).Msg("recipient scheduled")
		}
		results = append(results, result)
	}
	return results, nil
}

// properties flattens the request into the scheduler's property map for one
// recipient, merging common fields with the recipient's own.
func (s *Service) properties(req Request, recipient consumer.Recipient) map[string]any {
	payload := consumer.Payload{
		TaskID:      req.ID.String(),
		Description: req.Description,
		Recipient:   recipient,
		Template:    req.Template,
		Fields:      req.Fields,
		Attachments: req.Attachments,
		Additional:  req.Extra,
	}
	return payload.ToProperties()
}

// FailureCount returns how many results carry an error.
func FailureCount(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
