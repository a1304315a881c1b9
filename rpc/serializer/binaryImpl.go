package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 2 bytes flags (big endian), then every field whose flag
// is set, in flag order. Strings and byte slices are prefixed with a 4 byte length,
// lists with a 4 byte count.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey uint16 = 1 << iota
	hasEnd
	hasLimit
	hasValue
	hasClientID
	hasSequenceNumber
	hasFirstOutstanding
	hasConfigID
	hasServers
	hasRPCStatus
	hasClusterID
	hasLeaderHint
	hasStatus
	hasErr
	hasKeys
	hasMeta
)

const headerSize = 3 // MsgType + flags

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := &binaryWriter{buf: make([]byte, headerSize, b.sizeBytes(msg))}
	var flags uint16

	if msg.Key != "" {
		flags |= hasKey
		w.string(msg.Key)
	}
	if msg.End != "" {
		flags |= hasEnd
		w.string(msg.End)
	}
	if msg.Limit > 0 {
		flags |= hasLimit
		w.uint64(msg.Limit)
	}
	if msg.Value != nil {
		flags |= hasValue
		w.bytes(msg.Value)
	}
	if msg.ClientID > 0 {
		flags |= hasClientID
		w.uint64(msg.ClientID)
	}
	if msg.SequenceNumber > 0 {
		flags |= hasSequenceNumber
		w.uint64(msg.SequenceNumber)
	}
	if msg.FirstOutstanding > 0 {
		flags |= hasFirstOutstanding
		w.uint64(msg.FirstOutstanding)
	}
	if msg.ConfigID > 0 {
		flags |= hasConfigID
		w.uint64(msg.ConfigID)
	}
	if msg.Servers != nil {
		flags |= hasServers
		w.uint32(uint32(len(msg.Servers)))
		for _, s := range msg.Servers {
			w.uint64(s.ID)
			w.string(s.Address)
		}
	}
	if msg.RPCStatus != common.RPCStatusOK {
		flags |= hasRPCStatus
		w.byte(byte(msg.RPCStatus))
	}
	if msg.ClusterID != "" {
		flags |= hasClusterID
		w.string(msg.ClusterID)
	}
	if msg.LeaderHint != "" {
		flags |= hasLeaderHint
		w.string(msg.LeaderHint)
	}
	if msg.Status != 0 {
		flags |= hasStatus
		w.byte(msg.Status)
	}
	if msg.Err != "" {
		flags |= hasErr
		w.string(msg.Err)
	}
	if msg.Keys != nil {
		flags |= hasKeys
		w.uint32(uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			w.string(k)
		}
	}
	if msg.Meta != nil {
		flags |= hasMeta
		w.bytes(msg.Meta)
	}

	// Set header after knowing which fields are present
	w.buf[0] = byte(msg.MsgType)
	binary.BigEndian.PutUint16(w.buf[1:3], flags)

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("%w: data too short for message header", ErrMalformed)
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := &binaryReader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		msg.Key = r.string("key")
	}
	if flags&hasEnd != 0 {
		msg.End = r.string("end")
	}
	if flags&hasLimit != 0 {
		msg.Limit = r.uint64("limit")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasClientID != 0 {
		msg.ClientID = r.uint64("client id")
	}
	if flags&hasSequenceNumber != 0 {
		msg.SequenceNumber = r.uint64("sequence number")
	}
	if flags&hasFirstOutstanding != 0 {
		msg.FirstOutstanding = r.uint64("first outstanding")
	}
	if flags&hasConfigID != 0 {
		msg.ConfigID = r.uint64("config id")
	}
	if flags&hasServers != 0 {
		n := r.count("servers")
		msg.Servers = make([]store.Server, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			id := r.uint64("server id")
			addr := r.string("server address")
			msg.Servers = append(msg.Servers, store.Server{ID: id, Address: addr})
		}
	}
	if flags&hasRPCStatus != 0 {
		msg.RPCStatus = common.RPCStatus(r.byte("rpc status"))
	}
	if flags&hasClusterID != 0 {
		msg.ClusterID = r.string("cluster id")
	}
	if flags&hasLeaderHint != 0 {
		msg.LeaderHint = r.string("leader hint")
	}
	if flags&hasStatus != 0 {
		msg.Status = r.byte("status")
	}
	if flags&hasErr != 0 {
		msg.Err = r.string("error")
	}
	if flags&hasKeys != 0 {
		n := r.count("keys")
		msg.Keys = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Keys = append(msg.Keys, r.string("key"))
		}
	}
	if flags&hasMeta != 0 {
		msg.Meta = r.bytes("meta")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.End != "" {
		size += 4 + len(msg.End)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	for _, v := range []uint64{msg.Limit, msg.ClientID, msg.SequenceNumber, msg.FirstOutstanding, msg.ConfigID} {
		if v > 0 {
			size += 8
		}
	}
	if msg.Servers != nil {
		size += 4
		for _, s := range msg.Servers {
			size += 8 + 4 + len(s.Address)
		}
	}
	if msg.RPCStatus != common.RPCStatusOK {
		size++
	}
	if msg.ClusterID != "" {
		size += 4 + len(msg.ClusterID)
	}
	if msg.LeaderHint != "" {
		size += 4 + len(msg.LeaderHint)
	}
	if msg.Status != 0 {
		size++
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Keys != nil {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k)
		}
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// binaryWriter appends big endian fields to buf
type binaryWriter struct {
	buf []byte
}

func (w *binaryWriter) byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *binaryWriter) uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *binaryWriter) uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *binaryWriter) string(s string) {
	w.uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *binaryWriter) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// binaryReader reads big endian fields. The first error sticks, later reads return zero values.
type binaryReader struct {
	data []byte
	pos  int
	err  error
}

func (r *binaryReader) next(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: data too short for %s", ErrMalformed, field)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *binaryReader) byte(field string) byte {
	if b := r.next(1, field); b != nil {
		return b[0]
	}
	return 0
}

func (r *binaryReader) uint32(field string) uint32 {
	if b := r.next(4, field); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *binaryReader) uint64(field string) uint64 {
	if b := r.next(8, field); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// count reads a list length and checks it against the remaining data (every element takes at least 4 bytes)
func (r *binaryReader) count(field string) int {
	n := int(r.uint32(field + " count"))
	if r.err == nil && n*4 > len(r.data)-r.pos {
		r.err = fmt.Errorf("%w: data too short for %s", ErrMalformed, field)
		return 0
	}
	return n
}

func (r *binaryReader) string(field string) string {
	return string(r.next(int(r.uint32(field+" length")), field))
}

// bytes returns a copy, so the message does not alias the (pooled) input buffer
func (r *binaryReader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	b := r.next(n, field)
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, n), b...)
}
