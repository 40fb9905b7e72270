package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskmill/internal/consumer"
	"taskmill/internal/domain"
	"taskmill/internal/scheduler"
)

type fakeScheduler struct {
	requests []scheduler.Request
	failFor  map[string]error // recipient target -> injected error
}

func (f *fakeScheduler) Schedule(ctx context.Context, req scheduler.Request) (domain.TaskKey, error) {
	target, _ := req.Properties[consumer.KeyRecipientTarget].(string)
	if err, ok := f.failFor[target]; ok {
		return domain.TaskKey{}, err
	}
	f.requests = append(f.requests, req)
	return req.Key, nil
}

func baseRequest() Request {
	return Request{
		ID:           uuid.New(),
		ConsumerType: "email",
		Schedule:     domain.Immediate(),
		Recipients: []consumer.Recipient{
			{Target: "a@x.com", Name: "A", Locale: "en"},
			{Target: "b@x.com", Name: "B", Locale: "de"},
		},
		Template: "welcome",
		Fields:   map[string]string{"plan": "pro"},
		Extra:    map[string]any{"SUBJECT": "Welcome"},
	}
}

func TestFanOutSchedulesOneTaskPerRecipient(t *testing.T) {
	fake := &fakeScheduler{}
	svc := NewService(zerolog.Nop(), fake)

	req := baseRequest()
	results, err := svc.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(results) != 2 || len(fake.requests) != 2 {
		t.Fatalf("got %d results / %d requests, want 2/2", len(results), len(fake.requests))
	}

	if fake.requests[0].Key == fake.requests[1].Key {
		t.Fatalf("derived keys not distinct: %v", fake.requests[0].Key)
	}
	for i, sr := range fake.requests {
		if sr.Key.Group != req.ID.String() {
			t.Fatalf("request %d: group = %q, want request id", i, sr.Key.Group)
		}
		if sr.Properties[consumer.KeyTemplate] != "welcome" {
			t.Fatalf("request %d: shared template missing", i)
		}
		want := req.Recipients[i].Target
		if sr.Properties[consumer.KeyRecipientTarget] != want {
			t.Fatalf("request %d: recipient = %v, want %s", i, sr.Properties[consumer.KeyRecipientTarget], want)
		}
		if sr.Properties["SUBJECT"] != "Welcome" {
			t.Fatalf("request %d: consumer-specific key missing", i)
		}
	}
}

func TestFanOutPartialFailureContinues(t *testing.T) {
	fail := fmt.Errorf("%w: bad interval", domain.ErrInvalidSchedule)
	fake := &fakeScheduler{failFor: map[string]error{"b@x.com": fail}}
	svc := NewService(zerolog.Nop(), fake)

	results, err := svc.Schedule(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// a@x.com is still registered even though b@x.com failed.
	if len(fake.requests) != 1 || fake.requests[0].Properties[consumer.KeyRecipientTarget] != "a@x.com" {
		t.Fatalf("surviving request wrong: %+v", fake.requests)
	}
	if FailureCount(results) != 1 {
		t.Fatalf("failure count = %d, want 1", FailureCount(results))
	}
	for _, res := range results {
		if res.Recipient.Target == "b@x.com" && !errors.Is(res.Err, domain.ErrInvalidSchedule) {
			t.Fatalf("b@x.com err = %v", res.Err)
		}
		if res.Recipient.Target == "a@x.com" && res.Err != nil {
			t.Fatalf("a@x.com unexpectedly failed: %v", res.Err)
		}
	}
}

func TestFanOutValidation(t *testing.T) {
	svc := NewService(zerolog.Nop(), &fakeScheduler{})

	req := baseRequest()
	req.Recipients = nil
	if _, err := svc.Schedule(context.Background(), req); !errors.Is(err, domain.ErrEmptyRecipients) {
		t.Fatalf("err = %v, want ErrEmptyRecipients", err)
	}

	req = baseRequest()
	req.Template = ""
	if _, err := svc.Schedule(context.Background(), req); !errors.Is(err, domain.ErrMissingTemplate) {
		t.Fatalf("err = %v, want ErrMissingTemplate", err)
	}
}

func TestFanOutAssignsRequestID(t *testing.T) {
	fake := &fakeScheduler{}
	svc := NewService(zerolog.Nop(), fake)

	req := baseRequest()
	req.ID = uuid.Nil
	if _, err := svc.Schedule(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if fake.requests[0].Key.Group == uuid.Nil.String() {
		t.Fatal("nil request id not replaced")
	}
}
