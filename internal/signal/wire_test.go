package signal

import (
	"errors"
	"testing"
)

func TestErrorFromCode(t *testing.T) {
	if err := ErrorFromCode(""); err != nil {
		t.Fatalf("empty code should map to nil, got %v", err)
	}
	if err := ErrorFromCode(CodeRoomNotFound); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if err := ErrorFromCode(CodeRoomFull); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if err := ErrorFromCode("weird"); err == nil {
		t.Fatalf("unknown code should map to an error")
	}
}

func TestWSEndpoint(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"http://localhost:3001", "ws://localhost:3001/ws"},
		{"https://rally.example.com", "wss://rally.example.com/ws"},
		{"ws://localhost:3001/ws", "ws://localhost:3001/ws"},
		{"http://localhost:3001/", "ws://localhost:3001/ws"},
	}
	for _, tc := range cases {
		got, err := wsEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
	if _, err := wsEndpoint("ftp://nope"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
