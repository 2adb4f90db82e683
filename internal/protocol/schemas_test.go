package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ladderboard.ai/internal/board/model"
	"ladderboard.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON marshals a Go message and decodes it back into generic JSON values.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "hello.schema.json"), asJSON(t, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "sync",
	}))
	validate(compile(t, "fetch.schema.json"), asJSON(t, protocol.FetchMsg{
		Type: protocol.TypeFetch, ProtocolVersion: protocol.Version, RequestID: "r1",
		Channel: "1100000000000000001", After: model.CursorNone, Limit: 50,
	}))
	validate(compile(t, "batch.schema.json"), asJSON(t, protocol.BatchMsg{
		Type: protocol.TypeBatch, ProtocolVersion: protocol.Version, RequestID: "r1", Channel: "c",
		Messages: []model.Message{{ID: "12", Content: "LB_UPDATE: <@1> Gold 1 Gold 1 2026-01-01", Timestamp: time.Unix(0, 0).UTC()}},
	}))
	validate(compile(t, "post.schema.json"), asJSON(t, protocol.PostMsg{
		Type: protocol.TypePost, ProtocolVersion: protocol.Version, RequestID: "p1", Channel: "c", Content: "hi",
	}))
}

func TestSchemas_RejectBadFetch(t *testing.T) {
	s := compile(t, "fetch.schema.json")
	var v any
	_ = json.Unmarshal([]byte(`{"type":"FETCH","protocol_version":"1.0","request_id":"r","channel":"c","after":"abc","limit":1000}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected invalid FETCH")
	}
}
