package protocol

import (
	"encoding/json"
	"fmt"
)

// Whiteboard document protocol. The document is a flat record store; the
// contents of individual records stay opaque to the server.

const (
	KindSnapshot Kind = "snapshot"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
)

type DocMessage interface{ docKind() Kind }

// Snapshot is the full document, sent to a socket on attach.
type Snapshot struct {
	Records map[string]json.RawMessage `json:"records"`
}

// Update upserts records.
type Update struct {
	Records map[string]json.RawMessage `json:"records"`
}

// Delete removes records by id.
type Delete struct {
	IDs []string `json:"ids"`
}

func (Snapshot) docKind() Kind { return KindSnapshot }
func (Update) docKind() Kind   { return KindUpdate }
func (Delete) docKind() Kind   { return KindDelete }

// DecodeDoc parses one whiteboard frame.
func DecodeDoc(data []byte) (DocMessage, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad message envelope: %w", err)
	}
	switch env.Type {
	case KindUpdate:
		var m Update
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad update payload: %w", err)
		}
		return m, nil
	case KindDelete:
		var m Delete
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad delete payload: %w", err)
		}
		return m, nil
	default:
		return nil, ErrUnknownKind{Kind: env.Type}
	}
}

func SnapshotEvent(records map[string]json.RawMessage) []byte {
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	return mustMarshal(struct {
		Type    Kind                       `json:"type"`
		Records map[string]json.RawMessage `json:"records"`
	}{KindSnapshot, records})
}

func UpdateEvent(records map[string]json.RawMessage) []byte {
	return mustMarshal(struct {
		Type    Kind                       `json:"type"`
		Records map[string]json.RawMessage `json:"records"`
	}{KindUpdate, records})
}

func DeleteEvent(ids []string) []byte {
	return mustMarshal(struct {
		Type Kind     `json:"type"`
		IDs  []string `json:"ids"`
	}{KindDelete, ids})
}
