package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"go.palabra.dev/client/errs"
)

func TestNormalizeDataNestedObject(t *testing.T) {
	env := Envelope{MessageType: TypeCurrentTask, Data: json.RawMessage(`{"status":"active"}`)}
	got, err := env.NormalizeData()
	if err != nil {
		t.Fatalf("NormalizeData: %v", err)
	}
	var ct CurrentTask
	if err := json.Unmarshal(got, &ct); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ct.Status != "active" {
		t.Fatalf("got status %q", ct.Status)
	}
}

func TestNormalizeDataStringifiedJSON(t *testing.T) {
	raw, _ := json.Marshal(`{"status":"active"}`)
	env := Envelope{MessageType: TypeCurrentTask, Data: raw}
	got, err := env.NormalizeData()
	if err != nil {
		t.Fatalf("NormalizeData: %v", err)
	}
	var ct CurrentTask
	if err := json.Unmarshal(got, &ct); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ct.Status != "active" {
		t.Fatalf("got status %q", ct.Status)
	}
}

func TestNormalizeDataArrayShape(t *testing.T) {
	env := Envelope{MessageType: TypeError, Data: json.RawMessage(`[1,2,3]`)}
	got, err := env.NormalizeData()
	if err != nil {
		t.Fatalf("NormalizeData: %v", err)
	}
	if string(got) != "[1,2,3]" {
		t.Fatalf("got %s", got)
	}
}

func TestNormalizeDataFailsWhenBothInterpretationsFail(t *testing.T) {
	env := Envelope{MessageType: TypeError, Data: json.RawMessage(`not-json-at-all`)}
	_, err := env.NormalizeData()
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.MalformedFrame {
		t.Fatalf("got %v, want MalformedFrame", err)
	}
}

func TestNormalizeDataFailsOnEmbeddedNonJSONString(t *testing.T) {
	raw, _ := json.Marshal("just a plain string")
	env := Envelope{MessageType: TypeError, Data: raw}
	_, err := env.NormalizeData()
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.MalformedFrame {
		t.Fatalf("got %v, want MalformedFrame", err)
	}
}

func TestNormalizeDataFailsOnEmptyData(t *testing.T) {
	env := Envelope{MessageType: TypeError, Data: nil}
	_, err := env.NormalizeData()
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.MalformedFrame {
		t.Fatalf("got %v, want MalformedFrame", err)
	}
}
