package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message types. Inbound (server -> client) first, then outbound.
const (
	TypeHeartbeat = "heartbeat"
	TypeAssign    = "assign"
	TypeReject    = "reject"
	TypeStatus    = "status"
	TypeUsers     = "users"
	TypeLeave     = "leave"
	TypePlay      = "play"
	TypeQueue     = "queue"
	TypeUnqueue   = "unqueue"
	TypeChat      = "chat"
	TypeUser      = "user"
	TypeBlock     = "block"
	TypeBlocks    = "blocks"
	TypeEchoes    = "echoes"

	TypeJoin    = "join"
	TypeAuth    = "auth"
	TypeCommand = "command"
)

// TypeField is the tag shared by every frame; payloads may not use it.
const TypeField = "type"

var (
	ErrReservedField = errors.New(`payload uses reserved field "type"`)
	ErrMissingType   = errors.New("frame has no type")
)

// Frame is one decoded message: its type tag and the remaining fields.
type Frame struct {
	Type    string
	Payload json.RawMessage
}

// Encode flattens the payload's fields next to the type tag. A nil payload
// produces a bare {"type":...} frame.
func Encode(typ string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("encode %s: payload is not an object: %w", typ, err)
			}
			if fields == nil {
				fields = map[string]json.RawMessage{}
			}
		}
	}
	if _, ok := fields[TypeField]; ok {
		return nil, ErrReservedField
	}
	t, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	fields[TypeField] = t
	return json.Marshal(fields)
}

// Decode splits a frame into its type and payload object (type removed).
func Decode(b []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Frame{}, err
	}
	rawType, ok := fields[TypeField]
	if !ok {
		return Frame{}, ErrMissingType
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil || typ == "" {
		return Frame{}, ErrMissingType
	}
	delete(fields, TypeField)
	payload, err := json.Marshal(fields)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Payload: payload}, nil
}
