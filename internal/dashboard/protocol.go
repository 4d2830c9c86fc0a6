package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is a user action sent from the view to the host.
type Intent string

const (
	IntentRefresh          Intent = "refresh"
	IntentToggleAutoAccept Intent = "toggleAutoAccept"
	IntentExecuteTask      Intent = "executeTask"
	IntentClearCache       Intent = "clearCache"
	IntentAutoCleanCache   Intent = "autoCleanCache"
	IntentRunDiagnostics   Intent = "runDiagnostics"
	IntentRestartAgent     Intent = "restartAgent"
)

// MessageUpdate is the only host to view message type.
const MessageUpdate = "update"

var knownIntents = map[Intent]struct{}{
	IntentRefresh:          {},
	IntentToggleAutoAccept: {},
	IntentExecuteTask:      {},
	IntentClearCache:       {},
	IntentAutoCleanCache:   {},
	IntentRunDiagnostics:   {},
	IntentRestartAgent:     {},
}

// Message is one post between host and view. Host to view carries Data;
// view to host carries an intent in Type plus its arguments.
type Message struct {
	Type        string    `json:"type"`
	Data        *Snapshot `json:"data,omitempty"`
	Agent       string    `json:"agent,omitempty"`
	Description string    `json:"description,omitempty"`
	Confirm     bool      `json:"confirm,omitempty"`
}

func UpdateMessage(s *Snapshot) Message {
	return Message{Type: MessageUpdate, Data: s}
}

func (m Message) Intent() (Intent, bool) {
	intent := Intent(m.Type)
	_, ok := knownIntents[intent]
	return intent, ok
}

// ParseIntent decodes a view to host message and validates its arguments.
func ParseIntent(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	intent, ok := msg.Intent()
	if !ok {
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if intent == IntentRestartAgent && strings.TrimSpace(msg.Agent) == "" {
		return Message{}, fmt.Errorf("%s requires an agent name", intent)
	}
	return msg, nil
}
