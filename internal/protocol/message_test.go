package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeJoinVoice(t *testing.T) {
	data := []byte(`{"type":"join-voice-channel","serverId":"10","channelId":"5","userId":"u1"}`)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := msg.(JoinVoice)
	if !ok {
		t.Fatalf("expected JoinVoice, got %T", msg)
	}
	if m.ServerID != "10" || m.ChannelID != "5" || m.UserID != "u1" {
		t.Fatalf("unexpected fields: %+v", m)
	}
}

func TestDecodeLeaveVoice(t *testing.T) {
	data := []byte(`{"type":"leave-voice-channel","serverId":"10","channelId":"5","userId":"u1"}`)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(LeaveVoice); !ok {
		t.Fatalf("expected LeaveVoice, got %T", msg)
	}
}

func TestDecodeOfferKeepsPayloadOpaque(t *testing.T) {
	data := []byte(`{"type":"offer","serverId":"10","channelId":"5","offer":{"sdp":"v=0","anything":[1,2]},"fromUserId":"a","toUserId":"b"}`)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := msg.(Signal)
	if !ok {
		t.Fatalf("expected Signal, got %T", msg)
	}
	if m.Kind != KindOffer || m.FromUserID != "a" || m.ToUserID != "b" {
		t.Fatalf("unexpected fields: %+v", m)
	}
	var blob map[string]json.RawMessage
	if err := json.Unmarshal(m.Payload, &blob); err != nil {
		t.Fatalf("payload not passed through intact: %v", err)
	}
	if _, ok := blob["anything"]; !ok {
		t.Fatalf("unknown payload fields must survive the relay")
	}
}

func TestDecodeCandidate(t *testing.T) {
	data := []byte(`{"type":"ice-candidate","serverId":"10","channelId":"5","candidate":{"candidate":"cand"},"fromUserId":"a","toUserId":"b"}`)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := msg.(Signal)
	if m.Kind != KindICECandidate || len(m.Payload) == 0 {
		t.Fatalf("unexpected signal: %+v", m)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"mystery"}`))
	var unknown ErrUnknownKind
	if !errors.As(err, &unknown) || unknown.Kind != "mystery" {
		t.Fatalf("expected ErrUnknownKind{mystery}, got %v", err)
	}
}

func TestDecodeBadJSON(t *testing.T) {
	if _, err := Decode([]byte(`{nope`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestSignalEventTagging(t *testing.T) {
	frame := SignalEvent(Signal{
		Kind:       KindOffer,
		Payload:    json.RawMessage(`{"sdp":"v=0"}`),
		FromUserID: "a",
		ToUserID:   "b",
	})
	var out map[string]json.RawMessage
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatalf("event not valid json: %v", err)
	}
	if string(out["type"]) != `"offer"` {
		t.Fatalf("wrong type tag: %s", out["type"])
	}
	if string(out["toUserId"]) != `"b"` || string(out["fromUserId"]) != `"a"` {
		t.Fatalf("peer tags missing: %s", frame)
	}
	if _, ok := out["offer"]; !ok {
		t.Fatalf("payload should sit under its kind field: %s", frame)
	}
}

func TestDecodeDoc(t *testing.T) {
	msg, err := DecodeDoc([]byte(`{"type":"update","records":{"shape:1":{"x":1}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	up, ok := msg.(Update)
	if !ok || len(up.Records) != 1 {
		t.Fatalf("expected Update with one record, got %#v", msg)
	}

	msg, err = DecodeDoc([]byte(`{"type":"delete","ids":["shape:1"]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if del, ok := msg.(Delete); !ok || len(del.IDs) != 1 {
		t.Fatalf("expected Delete with one id, got %#v", msg)
	}

	if _, err := DecodeDoc([]byte(`{"type":"snapshot"}`)); err == nil {
		t.Fatalf("clients must not push snapshots")
	}
}
