package store

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Exactly-Once Tag
// --------------------------------------------------------------------------

// ExactlyOnceTag identifies a write-class request of a client session.
// A tag with ClientID == 0 was issued before the session could be opened and must not be sent.
type ExactlyOnceTag struct {
	ClientID         uint64 `json:"client_id"`
	SequenceNumber   uint64 `json:"seq"`
	FirstOutstanding uint64 `json:"first_outstanding"` // lowest sequence number the client still waits for
}

// Valid reports whether the tag belongs to an open session
func (t ExactlyOnceTag) Valid() bool {
	return t.ClientID != 0
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTOpenSession  CommandType = iota + 1 // Register a new client session.
	CommandTCloseSession                        // Drop a client session and its response cache.
	CommandTWrite                               // Insert or update an entry.
	CommandTRemove                              // Remove an entry.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTOpenSession:
		return "OpenSession"
	case CommandTCloseSession:
		return "CloseSession"
	case CommandTWrite:
		return "Write"
	case CommandTRemove:
		return "Remove"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Tagged reports whether commands of this type carry an exactly-once tag
func (ct CommandType) Tagged() bool {
	return ct == CommandTWrite || ct == CommandTRemove
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type      CommandType
	Tag       ExactlyOnceTag
	Timestamp uint64 // proposal time in unix nanoseconds, drives session expiry
	Key       string
	Value     []byte
}

const commandHeaderSize = 1 + 8 + 8 + 8 + 8 + 4 // Type + Tag + Timestamp + KeyLen

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes each for client id, sequence number, first outstanding and timestamp,
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Tag.ClientID)
	binary.BigEndian.PutUint64(result[9:17], command.Tag.SequenceNumber)
	binary.BigEndian.PutUint64(result[17:25], command.Tag.FirstOutstanding)
	binary.BigEndian.PutUint64(result[25:33], command.Timestamp)
	binary.BigEndian.PutUint32(result[33:37], uint32(len(command.Key)))

	n := copy(result[commandHeaderSize:], command.Key)
	copy(result[commandHeaderSize+n:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Tag.ClientID = binary.BigEndian.Uint64(data[1:9])
	command.Tag.SequenceNumber = binary.BigEndian.Uint64(data[9:17])
	command.Tag.FirstOutstanding = binary.BigEndian.Uint64(data[17:25])
	command.Timestamp = binary.BigEndian.Uint64(data[25:33])
	keyLen := int(binary.BigEndian.Uint32(data[33:37]))

	if len(data) < commandHeaderSize+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}

	command.Key = string(data[commandHeaderSize : commandHeaderSize+keyLen])

	if rest := data[commandHeaderSize+keyLen:]; len(rest) > 0 {
		// Reuse existing buffer if possible to reduce allocations
		if cap(command.Value) < len(rest) {
			command.Value = make([]byte, len(rest))
		} else {
			command.Value = command.Value[:len(rest)]
		}
		copy(command.Value, rest)
	} else {
		command.Value = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTRead   QueryType = iota + 1 // Retrieve an entry by key.
	QueryTRange                       // List keys in [Key, End).
	QueryTSearch                      // List keys containing Key as a substring.
	QueryTStat                        // Diagnostic summary of the store.
	QueryTInfo                        // Metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTRead:
		return "Read"
	case QueryTRange:
		return "Range"
	case QueryTSearch:
		return "Search"
	case QueryTStat:
		return "Stat"
	case QueryTInfo:
		return "Info"
	default:
		return fmt.Sprintf("Unknown(%d)", q)
	}
}

// Query defines the structure for lookup requests (read-only).
// Queries are executed locally on the state machine and are never serialized.
type Query struct {
	Type  QueryType
	Key   string // key (Read), start key (Range), pattern (Search), client (Stat)
	End   string // exclusive end key (Range), empty means unbounded
	Limit uint64 // maximum number of keys (Range, Search), 0 means unbounded
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// Response is the answer of the state machine to a Command or a Query
type Response struct {
	Status   StatusCode
	Error    string
	ClientID uint64   // assigned client id (OpenSession)
	Value    []byte   // entry value (Read) or diagnostic text (Stat)
	Keys     []string // matching keys (Range, Search)
	Info     any      // database metadata (Info)
}

// Result returns the status part of the response
func (r *Response) Result() Result {
	return NewResult(r.Status, "%s", r.Error)
}

// NewResponse creates a response carrying only a status
func NewResponse(status StatusCode, format string, args ...any) Response {
	res := NewResult(status, format, args...)
	return Response{Status: res.Status, Error: res.Error}
}

const responseHeaderSize = 1 + 8 + 4 // Status + ClientID + ErrLen

// Serialize encodes the command part of a response (Status, Error, ClientID, Value)
// with the format:
// 1 byte status,
// 8 bytes client id,
// 4 bytes error length,
// N bytes error,
// N bytes value (optional)
func (r *Response) Serialize() []byte {
	result := make([]byte, responseHeaderSize+len(r.Error)+len(r.Value))
	result[0] = byte(r.Status)
	binary.BigEndian.PutUint64(result[1:9], r.ClientID)
	binary.BigEndian.PutUint32(result[9:13], uint32(len(r.Error)))
	n := copy(result[responseHeaderSize:], r.Error)
	copy(result[responseHeaderSize+n:], r.Value)
	return result
}

// Deserialize decodes a response written by Serialize
func (r *Response) Deserialize(data []byte) error {
	if len(data) < responseHeaderSize {
		return fmt.Errorf("data too short for response")
	}
	r.Status = StatusCode(data[0])
	r.ClientID = binary.BigEndian.Uint64(data[1:9])
	errLen := int(binary.BigEndian.Uint32(data[9:13]))
	if len(data) < responseHeaderSize+errLen {
		return fmt.Errorf("data too short for error of length %d", errLen)
	}
	r.Error = string(data[responseHeaderSize : responseHeaderSize+errLen])
	if rest := data[responseHeaderSize+errLen:]; len(rest) > 0 {
		r.Value = append([]byte(nil), rest...)
	} else {
		r.Value = nil
	}
	return nil
}
