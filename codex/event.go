package codex

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// EventKind is the semantic category of one inbound message.
type EventKind int

const (
	// EventUnclassified covers every message the engine does not react to.
	EventUnclassified EventKind = iota
	// EventApprovalRequest is a server request that must be answered with an
	// accept/decline decision before the agent proceeds.
	EventApprovalRequest
	// EventThreadReply is the reply to thread/start or thread/resume.
	EventThreadReply
	// EventTurnStartReply is the reply to turn/start.
	EventTurnStartReply
	// EventItemStarted announces tool activity worth a progress label.
	EventItemStarted
	// EventAgentDelta carries an incremental fragment of the reply text.
	EventAgentDelta
	// EventAgentCompleted carries the complete final reply text, superseding
	// any deltas accumulated for the same item.
	EventAgentCompleted
	// EventTurnCompleted is the terminal event for the whole turn.
	EventTurnCompleted
)

// Event is the classified form of one inbound message. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind EventKind

	// RequestID correlates an approval request with its reply.
	RequestID any
	// ThreadID is the new or confirmed thread id on a thread reply.
	ThreadID string
	// ErrMessage is the server-reported error on a thread or turn reply.
	ErrMessage string
	// StatusLabel is the human-readable progress label for a started item.
	// Empty when the item type warrants none.
	StatusLabel string
	// Text is the delta fragment or the completed final text.
	Text string
}

// The approval request methods defined by the app-server protocol.
const (
	methodCommandApproval    = "item/commandExecution/requestApproval"
	methodFileChangeApproval = "item/fileChange/requestApproval"
)

// Classify maps one decoded inbound message to exactly one event category.
// Unknown messages classify as EventUnclassified and are ignored upstream.
func Classify(msg Message) Event {
	method, _ := msg["method"].(string)

	switch method {
	case methodCommandApproval, methodFileChangeApproval:
		if id, ok := msg["id"]; ok {
			return Event{Kind: EventApprovalRequest, RequestID: id}
		}
		// An approval request without an id cannot be answered.
		return Event{Kind: EventUnclassified}
	}

	if idEquals(msg["id"], threadRequestID) {
		ev := Event{Kind: EventThreadReply}
		if errMsg, ok := serverError(msg); ok {
			ev.ErrMessage = errMsg
			return ev
		}
		ev.ThreadID = threadIDFromResult(msg)
		return ev
	}
	if idEquals(msg["id"], turnRequestID) {
		ev := Event{Kind: EventTurnStartReply}
		if errMsg, ok := serverError(msg); ok {
			ev.ErrMessage = errMsg
		}
		return ev
	}

	switch method {
	case "item/started":
		item, _ := params(msg)["item"].(map[string]any)
		return Event{Kind: EventItemStarted, StatusLabel: statusLabel(item)}
	case "item/agentMessage/delta":
		p := params(msg)
		text, _ := p["delta"].(string)
		if text == "" {
			text, _ = p["text"].(string)
		}
		return Event{Kind: EventAgentDelta, Text: text}
	case "item/completed":
		item, _ := params(msg)["item"].(map[string]any)
		if itemType, _ := item["type"].(string); itemType == "agentMessage" {
			text, _ := item["text"].(string)
			return Event{Kind: EventAgentCompleted, Text: text}
		}
		return Event{Kind: EventUnclassified}
	case "turn/completed":
		return Event{Kind: EventTurnCompleted}
	}

	return Event{Kind: EventUnclassified}
}

func params(msg Message) map[string]any {
	p, _ := msg["params"].(map[string]any)
	return p
}

// idEquals compares a decoded id against a protocol request id. Decode uses
// json.Number, but messages built in tests may carry plain ints or floats.
func idEquals(v any, want int) bool {
	switch id := v.(type) {
	case json.Number:
		n, err := id.Int64()
		return err == nil && n == int64(want)
	case float64:
		return id == float64(want)
	case int:
		return id == want
	case int64:
		return id == int64(want)
	}
	return false
}

func serverError(msg Message) (string, bool) {
	errObj, ok := msg["error"].(map[string]any)
	if !ok {
		return "", false
	}
	if m, ok := errObj["message"].(string); ok && m != "" {
		return m, true
	}
	return fmt.Sprintf("%v", errObj), true
}

func threadIDFromResult(msg Message) string {
	result, _ := msg["result"].(map[string]any)
	thread, _ := result["thread"].(map[string]any)
	id, _ := thread["id"].(string)
	return id
}

// statusLabel derives a human-readable progress label from a started item.
// The label feeds progress notifications only and never affects the reply.
func statusLabel(item map[string]any) string {
	itemType, _ := item["type"].(string)
	switch itemType {
	case "commandExecution":
		return commandLabel(item)
	case "fileChange":
		return fileChangeLabel(item)
	case "webSearch":
		return webSearchLabel(item)
	case "mcpToolCall":
		server, _ := item["server"].(string)
		tool, _ := item["tool"].(string)
		if server != "" && tool != "" {
			return fmt.Sprintf("Calling tool: %s/%s", server, tool)
		}
		return "Calling a tool..."
	case "collabToolCall":
		if tool, _ := item["tool"].(string); tool != "" {
			return "Delegating: " + tool
		}
		return "Delegating..."
	}
	return ""
}

func commandLabel(item map[string]any) string {
	if actions, ok := item["actions"].([]any); ok && len(actions) > 0 {
		if first, ok := actions[0].(map[string]any); ok {
			if cmd := commandString(first["command"]); cmd != "" {
				return "Ran " + cmd
			}
		}
	}
	if cmd := commandString(item["command"]); cmd != "" {
		return "Ran " + cmd
	}
	return "Running a command..."
}

// commandString renders a command field that may arrive as a plain string or
// as an argv-style array.
func commandString(v any) string {
	switch cmd := v.(type) {
	case string:
		return cmd
	case []any:
		parts := make([]string, 0, len(cmd))
		for _, part := range cmd {
			if s, ok := part.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func fileChangeLabel(item map[string]any) string {
	changes, _ := item["changes"].([]any)
	if len(changes) == 0 {
		return "Editing files..."
	}
	names := make([]string, 0, 2)
	for _, change := range changes {
		if len(names) == 2 {
			break
		}
		c, ok := change.(map[string]any)
		if !ok {
			continue
		}
		if path, _ := c["path"].(string); path != "" {
			names = append(names, filepath.Base(path))
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Editing %d file(s)", len(changes))
	}
	label := fmt.Sprintf("Editing %d file(s): %s", len(changes), strings.Join(names, ", "))
	if extra := len(changes) - len(names); extra > 0 {
		label += fmt.Sprintf(" +%d more", extra)
	}
	return label
}

func webSearchLabel(item map[string]any) string {
	action, _ := item["action"].(map[string]any)
	actionType, _ := action["type"].(string)
	switch actionType {
	case "openPage":
		return "Opening page..."
	case "findInPage":
		return "Finding in page..."
	}
	return "Searching web..."
}
