package protocol

import (
	"bytes"
	"testing"
)

func TestBuildResponse(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		expected string
	}{
		{name: "simple word", request: "ping", expected: "Server received: ping"},
		{name: "empty request", request: "", expected: "Server received: "},
		{name: "spaces kept", request: "  a b  ", expected: "Server received:   a b  "},
		{name: "newline kept", request: "line1\nline2", expected: "Server received: line1\nline2"},
		{name: "prefix inside request", request: "Server received: x", expected: "Server received: Server received: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildResponse(tt.request)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected string
	}{
		{name: "ascii text", payload: []byte("hello"), expected: "hello"},
		{name: "nil payload", payload: nil, expected: ""},
		{name: "empty payload", payload: []byte{}, expected: ""},
		{name: "control bytes", payload: []byte{0x00, 0x07, 0x7F}, expected: "\x00\x07\x7F"},
		{name: "high bytes replaced", payload: []byte{'a', 0x80, 0xFF, 'b'}, expected: "a??b"},
		{name: "utf8 multibyte replaced per byte", payload: []byte("é"), expected: "??"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.payload)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []byte
	}{
		{name: "ascii text", text: "Server received: ping", expected: []byte("Server received: ping")},
		{name: "empty text", text: "", expected: []byte{}},
		{name: "non ascii rune", text: "aéb", expected: []byte("a?b")},
		{name: "invalid utf8 byte", text: "a\xffb", expected: []byte("a?b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.text)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRespond(t *testing.T) {
	text, wire := Respond([]byte("ping"))
	if text != "Server received: ping" {
		t.Errorf("Expected response text %q, got %q", "Server received: ping", text)
	}
	if string(wire) != text {
		t.Errorf("Expected wire bytes to match text, got %q", wire)
	}

	// Malformed payloads still produce a response
	text, wire = Respond([]byte{0xC3, 0x28, 0xFF})
	if text != "Server received: ?(?" {
		t.Errorf("Expected degraded response, got %q", text)
	}
	if len(wire) != len(ResponsePrefix)+3 {
		t.Errorf("Expected %d wire bytes, got %d", len(ResponsePrefix)+3, len(wire))
	}
}
