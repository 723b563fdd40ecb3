package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gustavo/tradeguard/internal/model"
)

func testEnvelope(data any) model.Envelope {
	return model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: []string{},
		Meta: model.EnvelopeMeta{
			RequestID: "req-1",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Command:   "evaluate",
		},
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	env := testEnvelope(map[string]any{"can_proceed": true})
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if decoded["success"] != true {
		t.Fatal("expected success envelope")
	}
	data, ok := decoded["data"].(map[string]any)
	if !ok || data["can_proceed"] != true {
		t.Fatalf("unexpected data: %v", decoded["data"])
	}
}

func TestRenderPlainSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	env := testEnvelope(map[string]any{"b": 2, "a": 1})
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("render: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "data=") {
		t.Fatalf("expected data key in plain output, got %q", line)
	}
	if strings.Index(line, "meta=") < strings.Index(line, "data=") {
		t.Fatalf("expected sorted keys, got %q", line)
	}
}

func TestRenderPlainEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := renderPlain(&buf, []any{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected [] for empty slice, got %q", buf.String())
	}
}
