package proto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTargetRefDecodeForms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want TargetRef
	}{
		{"object player", `{"kind":"player","id":"p-7"}`, PlayerTarget("p-7")},
		{"object ai", `{"kind":"ai","aiId":3}`, AITarget(3)},
		{"legacy ai key", `"ai-3"`, AITarget(3)},
		{"legacy player key", `"p-7"`, PlayerTarget("p-7")},
		{"legacy non-numeric ai suffix", `"ai-boss"`, PlayerTarget("ai-boss")},
	}
	for _, tc := range cases {
		var got TargetRef
		if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestTargetRefDecodeRejectsBadObjects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing kind", `{"id":"p-7"}`},
		{"unknown kind", `{"kind":"station","id":"s-1"}`},
	}
	for _, tc := range cases {
		var got TargetRef
		if err := json.Unmarshal([]byte(tc.raw), &got); err == nil {
			t.Fatalf("%s: expected error, got %+v", tc.name, got)
		}
	}
}

func TestTargetRefMarshalEmitsObjectForm(t *testing.T) {
	raw, err := json.Marshal(AITarget(12))
	if err != nil {
		t.Fatalf("marshal ai target: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"ai"`) || !strings.Contains(string(raw), `"aiId":12`) {
		t.Fatalf("unexpected ai wire form: %s", raw)
	}
	raw, err = json.Marshal(PlayerTarget("p-1"))
	if err != nil {
		t.Fatalf("marshal player target: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"player"`) || !strings.Contains(string(raw), `"id":"p-1"`) {
		t.Fatalf("unexpected player wire form: %s", raw)
	}
}

func TestTargetRefKeyRoundTrip(t *testing.T) {
	cases := []TargetRef{AITarget(0), AITarget(42), PlayerTarget("p-abc")}
	for _, ref := range cases {
		if got := ParseTargetKey(ref.Key()); got != ref {
			t.Fatalf("key %q round-tripped to %+v", ref.Key(), got)
		}
	}
}
