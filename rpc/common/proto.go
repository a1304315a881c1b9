package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/raftstore/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string `json:"key,omitempty"`   // Used for: Write, Read, Remove (path), Range (start), Search (pattern), Stat (client)
	End   string `json:"end,omitempty"`   // Used for: Range
	Limit uint64 `json:"limit,omitempty"` // Used for: Range, Search
	Value []byte `json:"value,omitempty"` // Used for: Write (request), Read and Stat (response)

	// Exactly-once tag, used for: Write, Remove, CloseSession and the OpenSession response
	ClientID         uint64 `json:"client_id,omitempty"`
	SequenceNumber   uint64 `json:"seq,omitempty"`
	FirstOutstanding uint64 `json:"first_outstanding,omitempty"`

	// Cluster configuration, used for: GetConfiguration, SetConfiguration
	ConfigID uint64         `json:"config_id,omitempty"`
	Servers  []store.Server `json:"servers,omitempty"`

	// Response only fields
	RPCStatus  RPCStatus `json:"rpc_status,omitempty"`  // Status of the RPC layer, see RPCStatus
	ClusterID  string    `json:"cluster_id,omitempty"`  // UUID of the answering cluster
	LeaderHint string    `json:"leader_hint,omitempty"` // Client endpoint of the leader (NOT_LEADER)
	Status     uint8     `json:"status,omitempty"`      // store.StatusCode (or store.ConfigStatus for SetConfiguration)
	Err        string    `json:"err,omitempty"`         // Empty if no error, otherwise contains the error message
	Keys       []string  `json:"keys,omitempty"`        // Used for: Range, Search

	// Meta information
	Meta []byte `json:"meta,omitempty"` // JSON payload of ServerInfo / ServerStats responses
}

// Tag returns the exactly-once tag carried by the message
func (m *Message) Tag() store.ExactlyOnceTag {
	return store.ExactlyOnceTag{
		ClientID:         m.ClientID,
		SequenceNumber:   m.SequenceNumber,
		FirstOutstanding: m.FirstOutstanding,
	}
}

// Result returns the store result carried by a response.
// Unknown status codes are mapped by store.StatusFromWire.
func (m *Message) Result() store.Result {
	return store.StatusFromWire(m.Status, m.Err)
}

// setTag copies tag into the message
func (m *Message) setTag(tag store.ExactlyOnceTag) *Message {
	m.ClientID = tag.ClientID
	m.SequenceNumber = tag.SequenceNumber
	m.FirstOutstanding = tag.FirstOutstanding
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewOpenSessionRequest creates a new OpenSession request
func NewOpenSessionRequest() *Message {
	return &Message{MsgType: MsgTOpenSession}
}

// NewOpenSessionResponse creates a new OpenSession response
func NewOpenSessionResponse(clientID uint64, res store.Result) *Message {
	return newStoreResponse(MsgTOpenSession, res).setTag(store.ExactlyOnceTag{ClientID: clientID})
}

// NewCloseSessionRequest creates a new CloseSession request
func NewCloseSessionRequest(clientID uint64) *Message {
	return (&Message{MsgType: MsgTCloseSession}).setTag(store.ExactlyOnceTag{ClientID: clientID})
}

// NewWriteRequest creates a new Write request
func NewWriteRequest(tag store.ExactlyOnceTag, path string, contents []byte) *Message {
	return (&Message{
		MsgType: MsgTWrite,
		Key:     path,
		Value:   contents,
	}).setTag(tag)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(tag store.ExactlyOnceTag, path string) *Message {
	return (&Message{
		MsgType: MsgTRemove,
		Key:     path,
	}).setTag(tag)
}

// NewReadRequest creates a new Read request
func NewReadRequest(path string) *Message {
	return &Message{
		MsgType: MsgTRead,
		Key:     path,
	}
}

// NewReadResponse creates a new Read response
func NewReadResponse(value []byte, res store.Result) *Message {
	msg := newStoreResponse(MsgTRead, res)
	msg.Value = value
	return msg
}

// NewRangeRequest creates a new Range request
func NewRangeRequest(start, end string, limit uint64) *Message {
	return &Message{
		MsgType: MsgTRange,
		Key:     start,
		End:     end,
		Limit:   limit,
	}
}

// NewSearchRequest creates a new Search request
func NewSearchRequest(pattern string, limit uint64) *Message {
	return &Message{
		MsgType: MsgTSearch,
		Key:     pattern,
		Limit:   limit,
	}
}

// NewKeysResponse creates a new Range or Search response
func NewKeysResponse(msgType MessageType, keys []string, res store.Result) *Message {
	msg := newStoreResponse(msgType, res)
	msg.Keys = keys
	return msg
}

// NewStatRequest creates a new Stat request
func NewStatRequest(client string) *Message {
	return &Message{
		MsgType: MsgTStat,
		Key:     client,
	}
}

// NewStatResponse creates a new Stat response
func NewStatResponse(stat string, res store.Result) *Message {
	msg := newStoreResponse(MsgTStat, res)
	msg.Value = []byte(stat)
	return msg
}

// NewStoreResponse creates a response carrying only a store result (Write, Remove, CloseSession)
func NewStoreResponse(msgType MessageType, res store.Result) *Message {
	return newStoreResponse(msgType, res)
}

func newStoreResponse(msgType MessageType, res store.Result) *Message {
	return &Message{
		MsgType: msgType,
		Status:  uint8(res.Status),
		Err:     res.Error,
	}
}

// NewGetConfigurationRequest creates a new GetConfiguration request
func NewGetConfigurationRequest() *Message {
	return &Message{MsgType: MsgTGetConfiguration}
}

// NewGetConfigurationResponse creates a new GetConfiguration response
func NewGetConfigurationResponse(conf store.Configuration, res store.Result) *Message {
	msg := newStoreResponse(MsgTGetConfiguration, res)
	msg.ConfigID = conf.ID
	msg.Servers = conf.Servers
	return msg
}

// NewSetConfigurationRequest creates a new SetConfiguration request
func NewSetConfigurationRequest(oldID uint64, servers []store.Server) *Message {
	return &Message{
		MsgType:  MsgTSetConfiguration,
		ConfigID: oldID,
		Servers:  servers,
	}
}

// NewSetConfigurationResponse creates a new SetConfiguration response.
// Status holds the store.ConfigStatus and Servers the bad servers.
func NewSetConfigurationResponse(res store.ConfigurationResult) *Message {
	return &Message{
		MsgType: MsgTSetConfiguration,
		Status:  uint8(res.Status),
		Err:     res.Error,
		Servers: res.BadServers,
	}
}

// ConfigurationResult returns the result carried by a SetConfiguration response
func (m *Message) ConfigurationResult() store.ConfigurationResult {
	return store.ConfigurationResult{
		Status:     store.ConfigStatus(m.Status),
		BadServers: m.Servers,
		Error:      m.Err,
	}
}

// NewServerInfoRequest creates a new ServerInfo request
func NewServerInfoRequest() *Message {
	return &Message{MsgType: MsgTServerInfo}
}

// NewServerStatsRequest creates a new ServerStats request
func NewServerStatsRequest() *Message {
	return &Message{MsgType: MsgTServerStats}
}

// NewMetaResponse creates a ServerInfo or ServerStats response with v encoded as JSON
func NewMetaResponse(msgType MessageType, v any) *Message {
	meta, err := json.Marshal(v)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("failed to encode %s: %v", msgType, err))
	}
	return &Message{
		MsgType: msgType,
		Meta:    meta,
	}
}

// NewNotLeaderResponse tells the client to retry at leaderHint (empty if unknown)
func NewNotLeaderResponse(msgType MessageType, leaderHint string) *Message {
	return &Message{
		MsgType:    msgType,
		RPCStatus:  RPCStatusNotLeader,
		LeaderHint: leaderHint,
	}
}

// NewUnavailableResponse tells the client that the server can not serve the request right now
func NewUnavailableResponse(msgType MessageType, err string) *Message {
	return &Message{
		MsgType:   msgType,
		RPCStatus: RPCStatusUnavailable,
		Err:       err,
	}
}

// NewInvalidRequestResponse is returned for messages the server does not understand
func NewInvalidRequestResponse(err string) *Message {
	return &Message{
		MsgType:   MsgTError,
		RPCStatus: RPCStatusInvalidRequest,
		Err:       err,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType:   MsgTError,
		RPCStatus: RPCStatusUnavailable,
		Err:       err,
	}
}

// --------------------------------------------------------------------------
// RPC Status
// --------------------------------------------------------------------------

// RPCStatus is the outcome of a request at the RPC layer, independent of the store result
type RPCStatus uint8

const (
	RPCStatusOK             RPCStatus = iota // The request reached the state machine (or control handler).
	RPCStatusNotLeader                       // The server is not the leader, see LeaderHint.
	RPCStatusInvalidRequest                  // The server did not understand the request.
	RPCStatusUnavailable                     // The server can not serve the request right now.
)

func (s RPCStatus) String() string {
	switch s {
	case RPCStatusOK:
		return "OK"
	case RPCStatusNotLeader:
		return "NOT_LEADER"
	case RPCStatusInvalidRequest:
		return "INVALID_REQUEST"
	case RPCStatusUnavailable:
		return "UNAVAILABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:          "success",
	MsgTError:            "error",
	MsgTOpenSession:      "openSession",
	MsgTCloseSession:     "closeSession",
	MsgTWrite:            "write",
	MsgTRead:             "read",
	MsgTRemove:           "remove",
	MsgTRange:            "range",
	MsgTSearch:           "search",
	MsgTStat:             "stat",
	MsgTGetConfiguration: "getConfiguration",
	MsgTSetConfiguration: "setConfiguration",
	MsgTServerInfo:       "serverInfo",
	MsgTServerStats:      "serverStats",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsControl reports whether any server can answer the message, leader or not
func (t MessageType) IsControl() bool {
	return t == MsgTServerInfo || t == MsgTServerStats
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Session operations

	MsgTOpenSession  // Open a client session
	MsgTCloseSession // Close a client session

	// IStore operations

	MsgTWrite  // Write an entry (tagged)
	MsgTRead   // Read an entry
	MsgTRemove // Remove an entry (tagged)
	MsgTRange  // List keys in a range
	MsgTSearch // List keys matching a pattern
	MsgTStat   // Diagnostic summary

	// Configuration operations

	MsgTGetConfiguration // Read the cluster membership
	MsgTSetConfiguration // Replace the cluster membership

	// Control operations, answered by every server

	MsgTServerInfo  // Identity of the answering server
	MsgTServerStats // Statistics of the answering server
)

// --------------------------------------------------------------------------
// Server Info
// --------------------------------------------------------------------------

// ServerInfo is the payload of a ServerInfo response
type ServerInfo struct {
	ServerID  uint64            `json:"server_id"`
	Addresses string            `json:"addresses"`
	ClusterID string            `json:"cluster_id"`
	Shards    []store.ShardInfo `json:"shards"`
}

// ServerStats is the payload of a ServerStats response
type ServerStats struct {
	ServerID      uint64            `json:"server_id"`
	StartTime     int64             `json:"start_time"` // unix nanoseconds
	UptimeSeconds float64           `json:"uptime_seconds"`
	Requests      uint64            `json:"requests"`
	Shards        []store.ShardInfo `json:"shards"`
	Metrics       string            `json:"metrics,omitempty"` // Prometheus text of the store metrics
}
