package dashboard

import (
	"encoding/json"
	"testing"
)

func TestParseIntentKnownTypes(t *testing.T) {
	for _, intent := range []Intent{
		IntentRefresh,
		IntentToggleAutoAccept,
		IntentExecuteTask,
		IntentClearCache,
		IntentAutoCleanCache,
		IntentRunDiagnostics,
	} {
		msg, err := ParseIntent([]byte(`{"type":"` + string(intent) + `"}`))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", intent, err)
		}
		if got, ok := msg.Intent(); !ok || got != intent {
			t.Fatalf("expected %s, got %s", intent, got)
		}
	}
}

func TestParseIntentRejectsUnknownAndInvalid(t *testing.T) {
	if _, err := ParseIntent([]byte(`{"type":"update"}`)); err == nil {
		t.Fatalf("host messages are not intents")
	}
	if _, err := ParseIntent([]byte(`{"type":"restartAgent"}`)); err == nil {
		t.Fatalf("restartAgent without agent must fail")
	}
	if _, err := ParseIntent([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json must fail")
	}
	msg, err := ParseIntent([]byte(`{"type":"restartAgent","agent":"coder"}`))
	if err != nil || msg.Agent != "coder" {
		t.Fatalf("unexpected restart message %+v, %v", msg, err)
	}
}

func TestUpdateMessageShape(t *testing.T) {
	out, err := json.Marshal(UpdateMessage(&Snapshot{Connected: true}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "update" || decoded.Data["connected"] != true {
		t.Fatalf("unexpected message %s", out)
	}
}
