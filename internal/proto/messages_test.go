package proto

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeEnvelopeStampsVersion(t *testing.T) {
	sentAt := time.UnixMilli(1_700_000_000_000)
	raw, err := EncodeEnvelope(KindPing, PingPayload{Nonce: "abc"}, sentAt)
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if env.Ver != Version {
		t.Fatalf("expected ver %d, got %d", Version, env.Ver)
	}
	if env.Type != KindPing {
		t.Fatalf("expected kind %v, got %v", KindPing, env.Type)
	}
	if env.Timestamp != 1_700_000_000_000 {
		t.Fatalf("expected timestamp 1700000000000, got %f", env.Timestamp)
	}
	var payload PingPayload
	if err := env.UnmarshalData(&payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Nonce != "abc" {
		t.Fatalf("expected nonce abc, got %q", payload.Nonce)
	}
}

func TestEncodeEnvelopeRejectsUnknownKind(t *testing.T) {
	if _, err := EncodeEnvelope(Kind(99), nil, time.Now()); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeEnvelopeDefaultsMissingVersion(t *testing.T) {
	raw := []byte(`{"type":15,"data":{"nonce":"x"},"timestamp":12.5}`)
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Ver != Version {
		t.Fatalf("expected defaulted ver %d, got %d", Version, env.Ver)
	}
}

func TestDecodeEnvelopeRejectsNewerVersion(t *testing.T) {
	raw := []byte(`{"ver":2,"type":15,"timestamp":1}`)
	if _, err := DecodeEnvelope(raw); err == nil {
		t.Fatalf("expected version error, got nil")
	} else if !strings.Contains(err.Error(), "unsupported protocol version") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeEnvelopeRejectsUnknownKind(t *testing.T) {
	raw := []byte(`{"ver":1,"type":42,"timestamp":1}`)
	if _, err := DecodeEnvelope(raw); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeEnvelopeRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected parse error, got nil")
	}
}

func TestUnmarshalDataRequiresPayload(t *testing.T) {
	env := Envelope{Ver: Version, Type: KindInput}
	var payload InputPayload
	if err := env.UnmarshalData(&payload); err == nil {
		t.Fatalf("expected error for empty payload, got nil")
	}
}

func TestKindNamesCoverEnumeration(t *testing.T) {
	for k := KindJoin; k <= KindPong; k++ {
		if !k.Valid() {
			t.Fatalf("kind %d should be valid", int(k))
		}
		if k.String() == "unknown" {
			t.Fatalf("kind %d has no name", int(k))
		}
	}
	if Kind(17).Valid() {
		t.Fatalf("kind 17 should be invalid")
	}
}
