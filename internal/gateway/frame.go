// Package gateway implements the wire protocol client for the remote gateway:
// connection lifecycle, challenge/response authentication, request/response
// correlation, reconnection, and streaming chat dispatch.
package gateway

import "encoding/json"

// ProtocolVersion is the gateway protocol version spoken by this client.
const ProtocolVersion = 3

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Method names.
const (
	MethodConnect   = "connect"
	MethodChatSend  = "chat.send"
	MethodFilesRead = "files.read"
)

// Event names.
const (
	EventConnectChallenge = "connect.challenge"
	EventChat             = "chat"
)

// Chat event states carried in the chat event payload.
const (
	ChatStateDelta   = "delta"
	ChatStateFinal   = "final"
	ChatStateError   = "error"
	ChatStateAborted = "aborted"
)

// Frame is one complete wire message. The discriminant is Type; the other
// fields are populated depending on it.
type Frame struct {
	Type    string         `json:"type,omitempty"`
	ID      string         `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	OK      *bool          `json:"ok,omitempty"`
	Payload any            `json:"payload,omitempty"`
	Error   any            `json:"error,omitempty"`
	Event   string         `json:"event,omitempty"`
}

// IsOK reports whether a response frame carries a success flag.
func (f *Frame) IsOK() bool {
	return f.OK != nil && *f.OK
}

// ParseFrame decodes a wire message. Malformed input, including valid JSON
// that is not an object, yields nil; the caller drops such frames.
func ParseFrame(data []byte) *Frame {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}
	return &frame
}
