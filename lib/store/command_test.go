package store

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Command with key and value",
			command:  Command{Type: CommandTWrite, Key: "testkey", Value: []byte("testvalue")},
			expected: 1 + 8 + 8 + 8 + 8 + 4 + 7 + 9, // Type + Tag + Timestamp + KeyLen + Key + Value
		},
		{
			name:     "Command without key and value",
			command:  Command{Type: CommandTOpenSession},
			expected: 1 + 8 + 8 + 8 + 8 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestCommandSerializeDeserialize tests both Serialize and Deserialize of commands
func TestCommandSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Tagged write",
			command: Command{
				Type:      CommandTWrite,
				Tag:       ExactlyOnceTag{ClientID: 42, SequenceNumber: 7, FirstOutstanding: 3},
				Timestamp: 1234567890,
				Key:       "testkey",
				Value:     []byte("testvalue"),
			},
		},
		{
			name:    "Remove without value",
			command: Command{Type: CommandTRemove, Tag: ExactlyOnceTag{ClientID: 1, SequenceNumber: 1, FirstOutstanding: 1}, Key: "k"},
		},
		{
			name:    "Open session",
			command: Command{Type: CommandTOpenSession, Timestamp: 99},
		},
		{
			name:    "Binary value",
			command: Command{Type: CommandTWrite, Key: "bin", Value: []byte{0, 1, 2, 0xff}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()
			if len(data) != tt.command.SizeBytes() {
				t.Errorf("len(Serialize()) = %d, want %d", len(data), tt.command.SizeBytes())
			}
			if keyLen := binary.BigEndian.Uint32(data[33:37]); int(keyLen) != len(tt.command.Key) {
				t.Errorf("encoded key length = %d, want %d", keyLen, len(tt.command.Key))
			}

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() returned error: %v", err)
			}
			if got.Type != tt.command.Type || got.Tag != tt.command.Tag ||
				got.Timestamp != tt.command.Timestamp || got.Key != tt.command.Key {
				t.Errorf("Deserialize() = %+v, want %+v", got, tt.command)
			}
			if !bytes.Equal(got.Value, tt.command.Value) {
				t.Errorf("Deserialize().Value = %v, want %v", got.Value, tt.command.Value)
			}
		})
	}
}

func TestCommandDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTWrite, Key: "testkey", Value: []byte("v")}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:commandHeaderSize-1]},
		{"truncated key", valid[:commandHeaderSize+3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Command
			if err := c.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() should fail")
			}
		})
	}
}

func TestResponseSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name     string
		response Response
	}{
		{"ok with value", Response{Status: StatusOK, Value: []byte("v")}},
		{"open session", Response{Status: StatusOK, ClientID: 17}},
		{"error", NewResponse(StatusLookupError, "Path not found: %s", "a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Response
			if err := got.Deserialize(tt.response.Serialize()); err != nil {
				t.Fatalf("Deserialize() returned error: %v", err)
			}
			if got.Status != tt.response.Status || got.Error != tt.response.Error || got.ClientID != tt.response.ClientID {
				t.Errorf("Deserialize() = %+v, want %+v", got, tt.response)
			}
			if !bytes.Equal(got.Value, tt.response.Value) {
				t.Errorf("Deserialize().Value = %v, want %v", got.Value, tt.response.Value)
			}
		})
	}

	var r Response
	if err := r.Deserialize([]byte{0, 1}); err == nil {
		t.Errorf("Deserialize() of short data should fail")
	}
}

func TestCommandTypeTagged(t *testing.T) {
	for ct, want := range map[CommandType]bool{
		CommandTOpenSession:  false,
		CommandTCloseSession: false,
		CommandTWrite:        true,
		CommandTRemove:       true,
	} {
		if got := ct.Tagged(); got != want {
			t.Errorf("%s.Tagged() = %v, want %v", ct, got, want)
		}
	}
}
