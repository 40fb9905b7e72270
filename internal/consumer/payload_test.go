package consumer

import (
	"strings"
	"testing"
)

func validProperties() map[string]any {
	return map[string]any{
		KeyTaskID:          "11111111-2222-3333-4444-555555555555",
		KeyRecipientTarget: "a@x.com",
		KeyRecipientName:   "Ada",
		KeyRecipientLocale: "en",
		KeyTemplate:        "welcome",
		KeyDescription:     "welcome mail",
		KeyFields:          map[string]string{"plan": "pro"},
		KeyAttachments:     []string{"/tmp/terms.pdf"},
		"SUBJECT":          "Hello",
	}
}

func TestBuildPayloadStripsReservedKeys(t *testing.T) {
	p, err := BuildPayload(validProperties())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Recipient.Target != "a@x.com" || p.Template != "welcome" {
		t.Fatalf("payload mismatch: %+v", p)
	}
	if p.Fields["plan"] != "pro" || len(p.Attachments) != 1 {
		t.Fatalf("fields/attachments lost: %+v", p)
	}
	if len(p.Additional) != 1 || p.Additional["SUBJECT"] != "Hello" {
		t.Fatalf("additional parameters wrong: %+v", p.Additional)
	}
	// Reserved keys never leak into the additional set.
	for key := range p.Additional {
		if _, reserved := reservedKeys[key]; reserved {
			t.Fatalf("reserved key %q leaked", key)
		}
	}
}

func TestBuildPayloadMissingRequiredKeys(t *testing.T) {
	for _, key := range []string{KeyTaskID, KeyRecipientTarget, KeyTemplate} {
		props := validProperties()
		delete(props, key)
		if _, err := BuildPayload(props); err == nil || !strings.Contains(err.Error(), key) {
			t.Fatalf("missing %s: err = %v", key, err)
		}
	}
}

func TestBuildPayloadMistypedKey(t *testing.T) {
	props := validProperties()
	props[KeyTemplate] = 42
	if _, err := BuildPayload(props); err == nil {
		t.Fatal("mistyped template accepted")
	}
}

func TestBuildPayloadToleratesJSONShapes(t *testing.T) {
	// Maps and slices come back as map[string]any / []any after a trip
	// through the task store.
	props := validProperties()
	props[KeyFields] = map[string]any{"plan": "pro"}
	props[KeyAttachments] = []any{"/tmp/terms.pdf"}

	p, err := BuildPayload(props)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Fields["plan"] != "pro" || p.Attachments[0] != "/tmp/terms.pdf" {
		t.Fatalf("JSON shapes not tolerated: %+v", p)
	}
}

func TestToPropertiesRoundTrip(t *testing.T) {
	original, err := BuildPayload(validProperties())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rebuilt, err := BuildPayload(original.ToProperties())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if rebuilt.TaskID != original.TaskID ||
		rebuilt.Recipient != original.Recipient ||
		rebuilt.Template != original.Template ||
		rebuilt.Additional["SUBJECT"] != "Hello" {
		t.Fatalf("round trip mismatch: %+v vs %+v", rebuilt, original)
	}
}
