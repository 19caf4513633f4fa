package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	armSchema := compile("arm.schema.json")
	inputSchema := compile("input.schema.json")
	tickSchema := compile("tick.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"hud",
	  "max_queue":8
	}`), &hello)
	validate(helloSchema, hello)

	var arm any
	_ = json.Unmarshal([]byte(`{
	  "type":"ARM",
	  "protocol_version":"1.0",
	  "ref":"CMD1",
	  "arena_id":3,
	  "character_id":12
	}`), &arm)
	validate(armSchema, arm)

	var input any
	_ = json.Unmarshal([]byte(`{
	  "type":"INPUT",
	  "protocol_version":"1.0",
	  "arena_id":0,
	  "input":{"character_id":12,"kind":"MOVE","dx":1,"dy":0}
	}`), &input)
	validate(inputSchema, input)

	var tick any
	_ = json.Unmarshal([]byte(`{
	  "type":"TICK",
	  "protocol_version":"1.0",
	  "tick":420,
	  "clocks":[{"arena_id":0,"time":7.0,"loop_count":2,"ghosts":3,"recording":false}],
	  "events":[{
	    "entity_id":"C0012",
	    "arena_id":0,
	    "arena_time":7.0,
	    "kind":"CAST",
	    "resolved_payload":{"x":10,"y":5,"slot":1,"target_id":"BOSS","amount":132,"crit":true}
	  }]
	}`), &tick)
	validate(tickSchema, tick)
}

func TestSchemas_RejectOutOfRangeArena(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "arm.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var arm any
	_ = json.Unmarshal([]byte(`{
	  "type":"ARM",
	  "protocol_version":"1.0",
	  "arena_id":9,
	  "character_id":1
	}`), &arm)
	if err := s.Validate(arm); err == nil {
		t.Fatalf("expected arena_id 9 to be rejected")
	}
}
