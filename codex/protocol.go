package codex

import (
	"bytes"
	"encoding/json"

	"github.com/m4xw311/codexgram/errors"
)

// Client identity reported to the app-server during the handshake.
const (
	clientName    = "codexgram"
	clientTitle   = "Codexgram"
	clientVersion = "0.1.0"
)

// Request ids are a protocol convention: the app-server correlates replies by
// id, and the session loop matches replies against exactly these values.
const (
	initializeRequestID = 0
	threadRequestID     = 1
	turnRequestID       = 2
)

// Message is one protocol message, in either direction. Outbound messages are
// built by the constructors below; inbound messages stay opaque until they go
// through Classify.
type Message map[string]any

// Encode serializes a message to a single newline-terminated JSON line.
// json.Marshal escapes any newline inside string values, so the payload itself
// can never span lines.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize protocol message")
	}
	return append(data, '\n'), nil
}

// Decode parses one inbound line. Callers skip blank lines before calling;
// a non-blank line that fails to parse is a protocol violation.
func Decode(line []byte) (Message, error) {
	var msg Message
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse protocol line %q", string(line))
	}
	return msg, nil
}

// InitializeMessage builds the handshake request.
func InitializeMessage() Message {
	return Message{
		"method": "initialize",
		"id":     initializeRequestID,
		"params": map[string]any{
			"clientInfo": map[string]any{
				"name":    clientName,
				"title":   clientTitle,
				"version": clientVersion,
			},
		},
	}
}

// InitializedMessage builds the handshake-complete notification. It carries no
// id and the server never replies to it.
func InitializedMessage() Message {
	return Message{
		"method": "initialized",
		"params": map[string]any{},
	}
}

// ThreadStartMessage builds a request for a fresh conversation thread.
func ThreadStartMessage(cwd string) Message {
	params := map[string]any{}
	if cwd != "" {
		params["cwd"] = cwd
	}
	return Message{
		"method": "thread/start",
		"id":     threadRequestID,
		"params": params,
	}
}

// ThreadResumeMessage builds a request resuming an existing thread.
func ThreadResumeMessage(threadID, cwd string) Message {
	params := map[string]any{
		"threadId": threadID,
	}
	if cwd != "" {
		params["cwd"] = cwd
	}
	return Message{
		"method": "thread/resume",
		"id":     threadRequestID,
		"params": params,
	}
}

// TurnStartMessage builds the request that submits one instruction to a
// thread.
func TurnStartMessage(threadID, instruction, cwd string) Message {
	params := map[string]any{
		"threadId": threadID,
		"input": []any{
			map[string]any{"type": "text", "text": instruction},
		},
	}
	if cwd != "" {
		params["cwd"] = cwd
	}
	return Message{
		"method": "turn/start",
		"id":     turnRequestID,
		"params": params,
	}
}

// ApprovalResponseMessage builds the reply to an approval request, correlated
// by the request's own id.
func ApprovalResponseMessage(requestID any, decision ApprovalDecision) Message {
	return Message{
		"id": requestID,
		"result": map[string]any{
			"decision": string(decision),
		},
	}
}
