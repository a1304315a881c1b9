package serializer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	tag := store.ExactlyOnceTag{ClientID: 42, SequenceNumber: 7, FirstOutstanding: 5}
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Requests, built by the factory functions
		*common.NewOpenSessionRequest(),
		*common.NewWriteRequest(tag, "db_key", []byte("test-value")),
		*common.NewRemoveRequest(tag, "db_key"),
		*common.NewRangeRequest("db_a", "db~", 10),
		*common.NewSearchRequest("pattern", 3),
		*common.NewSetConfigurationRequest(3, []store.Server{{ID: 1, Address: "a:1"}, {ID: 2, Address: "b:2"}}),

		// Responses
		*common.NewOpenSessionResponse(99, store.OK()),
		*common.NewReadResponse([]byte("value"), store.OK()),
		*common.NewKeysResponse(common.MsgTRange, []string{"a", "b", "c"}, store.OK()),
		*common.NewStoreResponse(common.MsgTWrite, store.NewResult(store.StatusConditionNotMet, "Path [[x]] is reserved")),
		*common.NewNotLeaderResponse(common.MsgTWrite, "localhost:8081"),
		*common.NewInvalidRequestResponse("unknown message type"),
		*common.NewSetConfigurationResponse(store.ConfigurationResult{
			Status:     store.ConfigBad,
			BadServers: []store.Server{{ID: 3, Address: "c:3"}},
			Error:      store.ConfigBadMessage,
		}),

		// Message with all fields filled
		{
			MsgType:          common.MsgTStat,
			Key:              "key",
			End:              "end",
			Limit:            100,
			Value:            []byte("value"),
			ClientID:         1,
			SequenceNumber:   2,
			FirstOutstanding: 3,
			ConfigID:         4,
			Servers:          []store.Server{{ID: 5, Address: "host:5"}},
			RPCStatus:        common.RPCStatusUnavailable,
			ClusterID:        "9f3c5a3e-7a52-4c1f-9d4b-6b0e4a0f1c2d",
			LeaderHint:       "host:6",
			Status:           uint8(store.StatusSessionExpired),
			Err:              "test error message",
			Keys:             []string{"k1", "k2"},
			Meta:             []byte(`{"server_id":1}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTServerStats; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests empty but non-nil fields, which only the binary format preserves
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty value slice but not nil",
			msg:  common.Message{MsgType: common.MsgTWrite, Key: "test", Value: []byte{}},
		},
		{
			name: "Empty key list but not nil",
			msg:  common.Message{MsgType: common.MsgTRange, Keys: []string{}},
		},
		{
			name: "Empty server list but not nil",
			msg:  common.Message{MsgType: common.MsgTGetConfiguration, Servers: []store.Server{}},
		},
		{
			name: "Empty meta slice but not nil",
			msg:  common.Message{MsgType: common.MsgTServerInfo, Meta: []byte{}},
		},
		{
			name: "Unknown status code",
			msg:  common.Message{MsgType: common.MsgTRead, Status: 200, Err: "from the future"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Deserialize() = %+v, want %+v", result, tc.msg)
			}
		})
	}
}

// TestDeserializeResetsMessage tests that fields of a reused message do not leak into the next one
func TestDeserializeResetsMessage(t *testing.T) {
	for name, newSerializer := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := newSerializer()

			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTRead, Key: "k"})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			msg := common.Message{Value: []byte("stale"), Err: "stale", Keys: []string{"stale"}}
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if msg.Value != nil || msg.Err != "" || msg.Keys != nil || msg.Key != "k" {
				t.Errorf("Deserialize() kept stale fields: %+v", msg)
			}
		})
	}
}

// TestMalformedInput tests that garbage is reported as ErrMalformed by every serializer
func TestMalformedInput(t *testing.T) {
	for name, newSerializer := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Message
			err := newSerializer().Deserialize([]byte{0xff}, &msg)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Deserialize(garbage) error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		if s, err := ByName(name); err != nil || s == nil {
			t.Errorf("ByName(%q) = %v, %v, want serializer", name, s, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("ByName(xml) returned no error")
	}
	if got := len(Names()); got != len(testSerializers) {
		t.Errorf("len(Names()) = %d, want %d", got, len(testSerializers))
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 8, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing limit",
			data:        []byte{1, 0, 4, 0, 0, 0}, // Limit needs 8 bytes
			expectError: true,
		},
		{
			name:        "Key count larger than data",
			data:        []byte{1, 0x40, 0, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed but got %v", err)
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestMessageResult(t *testing.T) {
	tests := []struct {
		name string
		msg  common.Message
		want store.Result
	}{
		{"ok", common.Message{Status: 0, Err: ""}, store.OK()},
		{"known status", common.Message{Status: uint8(store.StatusLookupError), Err: "Path not found: a"},
			store.Result{Status: store.StatusLookupError, Error: "Path not found: a"}},
		{"unknown status", common.Message{Status: 42, Err: "boom"},
			store.Result{Status: store.StatusInvalidArgument,
				Error: "Did not understand status code in response (42). Original error was: boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Result(); got != tt.want {
				t.Errorf("Result() = %v, want %v", got, tt.want)
			}
		})
	}
}
