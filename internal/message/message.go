// Package message defines the unit exchanged between the native host and the
// web view, together with its JSON wire encoding.
//
// A Message plays exactly one role, decided by which fields are populated:
//
//   - response:     ResponseID is set; ResponseData carries the payload.
//   - request:      CallbackID is set; the receiver must echo it as ResponseID.
//   - notification: neither is set; Data is delivered one-way.
//
// An empty string is equivalent to an absent field.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is the wire-format unit of the bridge.
type Message struct {
	Data         string `json:"data,omitempty"`
	ResponseID   string `json:"responseId,omitempty"`
	ResponseData string `json:"responseData,omitempty"`
	CallbackID   string `json:"callbackId,omitempty"`
	HandlerName  string `json:"handlerName,omitempty"`
}

// Role enumerates the three kinds of message.
type Role string

const (
	RoleNotification Role = "notification"
	RoleRequest      Role = "request"
	RoleResponse     Role = "response"
)

// Role classifies the message. A response id takes precedence over a
// callback id.
func (m Message) Role() Role {
	switch {
	case m.ResponseID != "":
		return RoleResponse
	case m.CallbackID != "":
		return RoleRequest
	default:
		return RoleNotification
	}
}

// MalformedBatchError reports an encoding that could not be decoded. No
// message of the offending input is returned alongside it.
type MalformedBatchError struct {
	Input string
	Err   error
}

func (e *MalformedBatchError) Error() string {
	return fmt.Sprintf("malformed message batch (%d bytes): %v", len(e.Input), e.Err)
}

func (e *MalformedBatchError) Unwrap() error { return e.Err }

// Encode returns the JSON form of a single message.
func Encode(m Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(b), nil
}

// Decode parses a single encoded message.
func Decode(s string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Message{}, &MalformedBatchError{Input: s, Err: err}
	}
	return m, nil
}

// EncodeBatch returns the JSON array form of msgs. A nil slice encodes as an
// empty array.
func EncodeBatch(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return string(b), nil
}

// DecodeBatch parses an encoded array of messages. Decoding is all or
// nothing: on failure the returned slice is nil. A blank input is an empty
// batch.
func DecodeBatch(s string) ([]Message, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(s), &msgs); err != nil {
		return nil, &MalformedBatchError{Input: s, Err: err}
	}
	return msgs, nil
}
