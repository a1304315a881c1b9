package internal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/ValentinKolb/raftstore/lib/db/util"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// DefaultSessionTimeout is the idle time after which a client session expires
const DefaultSessionTimeout = time.Hour

// --------------------------------------------------------------------------
// Machine
// --------------------------------------------------------------------------

// Options configures a Machine
type Options struct {
	// SessionTimeout is the idle time (in cluster time) after which a session expires (0 = default)
	SessionTimeout time.Duration
	// Metrics is the set the machine registers its counters in (nil = a new set)
	Metrics *metrics.Set
	// Labels are added to every metric name, e.g. `shard="100"`
	Labels string
}

// session is the server side state of one client
type session struct {
	lastModified     uint64                    // cluster time of the last command
	firstOutstanding uint64                    // highest FirstOutstanding seen, responses below it are gone
	responses        map[uint64]store.Response // response cache by sequence number
}

// Machine is the deterministic state machine shared by all shard implementations.
//
// Apply and PrepareSnapshot must not be called concurrently with each other.
// Query may be called concurrently with everything.
type Machine struct {
	database       db.KVDB
	sessions       map[uint64]*session
	expiry         *util.MapHeap[uint64] // client id by lastModified
	clusterTime    uint64
	sessionTimeout uint64

	numSessions atomic.Int64

	// metrics
	set                *metrics.Set
	numWriteAttempted  *metrics.Counter
	numWriteSuccess    *metrics.Counter
	numReadAttempted   *metrics.Counter
	numReadSuccess     *metrics.Counter
	numRemoveAttempted *metrics.Counter
	numRemoveSuccess   *metrics.Counter
	numDuplicates      *metrics.Counter
	numExpired         *metrics.Counter
	valueSize          *metrics.Histogram
}

// NewMachine creates a state machine on top of database. opts is optional.
func NewMachine(database db.KVDB, opts *Options) *Machine {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.SessionTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	set := opts.Metrics
	if set == nil {
		set = metrics.NewSet()
	}

	name := func(base string) string {
		if opts.Labels == "" {
			return base
		}
		return base + "{" + opts.Labels + "}"
	}

	m := &Machine{
		database:       database,
		sessions:       make(map[uint64]*session),
		expiry:         util.NewMapHeap[uint64](),
		sessionTimeout: uint64(timeout),
		set:            set,

		numWriteAttempted:  set.GetOrCreateCounter(name("raftstore_store_write_attempted_total")),
		numWriteSuccess:    set.GetOrCreateCounter(name("raftstore_store_write_success_total")),
		numReadAttempted:   set.GetOrCreateCounter(name("raftstore_store_read_attempted_total")),
		numReadSuccess:     set.GetOrCreateCounter(name("raftstore_store_read_success_total")),
		numRemoveAttempted: set.GetOrCreateCounter(name("raftstore_store_remove_attempted_total")),
		numRemoveSuccess:   set.GetOrCreateCounter(name("raftstore_store_remove_success_total")),
		numDuplicates:      set.GetOrCreateCounter(name("raftstore_store_duplicate_requests_total")),
		numExpired:         set.GetOrCreateCounter(name("raftstore_store_expired_sessions_total")),
		valueSize:          set.GetOrCreateHistogram(name("raftstore_store_value_size_bytes")),
	}
	set.GetOrCreateGauge(name("raftstore_store_sessions"), func() float64 {
		return float64(m.numSessions.Load())
	})
	return m
}

// Metrics returns the metric set of the machine
func (m *Machine) Metrics() *metrics.Set {
	return m.set
}

// Database returns the database of the machine
func (m *Machine) Database() db.KVDB {
	return m.database
}

// Close closes the underlying database
func (m *Machine) Close() error {
	return m.database.Close()
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Apply executes a single command. index is the log index of the command.
func (m *Machine) Apply(index uint64, cmd store.Command) store.Response {
	if cmd.Timestamp > m.clusterTime {
		m.clusterTime = cmd.Timestamp
	}
	m.expireSessions()

	switch cmd.Type {
	case store.CommandTOpenSession:
		m.sessions[index] = &session{
			lastModified: m.clusterTime,
			responses:    make(map[uint64]store.Response),
		}
		m.expiry.Set(index, m.clusterTime)
		m.numSessions.Store(int64(len(m.sessions)))
		return store.Response{Status: store.StatusOK, ClientID: index}

	case store.CommandTCloseSession:
		if _, ok := m.sessions[cmd.Tag.ClientID]; ok {
			delete(m.sessions, cmd.Tag.ClientID)
			m.expiry.Remove(cmd.Tag.ClientID)
			m.numSessions.Store(int64(len(m.sessions)))
		}
		return store.NewResponse(store.StatusOK, "")

	case store.CommandTWrite, store.CommandTRemove:
		if !cmd.Tag.Valid() {
			// untagged commands are applied without duplicate detection
			return m.applyMutation(cmd)
		}
		return m.applyExactlyOnce(cmd)

	default:
		return store.NewResponse(store.StatusInvalidArgument, "unknown command type: %s", cmd.Type)
	}
}

// applyExactlyOnce runs cmd at most once per (client id, sequence number)
func (m *Machine) applyExactlyOnce(cmd store.Command) store.Response {
	tag := cmd.Tag
	s, ok := m.sessions[tag.ClientID]
	if !ok {
		return store.NewResponse(store.StatusSessionExpired,
			"session %d expired or was never opened", tag.ClientID)
	}

	s.lastModified = m.clusterTime
	m.expiry.Set(tag.ClientID, m.clusterTime)

	// drop responses the client acknowledged
	if tag.FirstOutstanding > s.firstOutstanding {
		s.firstOutstanding = tag.FirstOutstanding
		for seq := range s.responses {
			if seq < s.firstOutstanding {
				delete(s.responses, seq)
			}
		}
	}

	if tag.SequenceNumber < s.firstOutstanding {
		return store.NewResponse(store.StatusInvalidArgument,
			"sequence number %d of client %d was already acknowledged", tag.SequenceNumber, tag.ClientID)
	}

	if cached, ok := s.responses[tag.SequenceNumber]; ok {
		m.numDuplicates.Inc()
		return cached
	}

	res := m.applyMutation(cmd)
	s.responses[tag.SequenceNumber] = res
	return res
}

// applyMutation applies a write or remove to the database
func (m *Machine) applyMutation(cmd store.Command) store.Response {
	switch cmd.Type {
	case store.CommandTWrite:
		m.numWriteAttempted.Inc()
		if cmd.Key == "" || len(cmd.Value) == 0 {
			return store.NewResponse(store.StatusInvalidArgument, "Invalid param: %s,%s", cmd.Key, cmd.Value)
		}
		if util.IsReservedKey(cmd.Key) {
			return store.NewResponse(store.StatusConditionNotMet, "Path %s is reserved", cmd.Key)
		}
		if err := m.database.Put(cmd.Key, cmd.Value); err != nil {
			return store.NewResponse(store.StatusOperationError, "Operation failed: %s: %v", cmd.Key, err)
		}
		m.valueSize.Update(float64(len(cmd.Value)))
		m.numWriteSuccess.Inc()
		return store.NewResponse(store.StatusOK, "")

	default: // store.CommandTRemove
		m.numRemoveAttempted.Inc()
		if cmd.Key == "" {
			return store.NewResponse(store.StatusInvalidArgument, "Invalid param: %s", cmd.Key)
		}
		if util.IsReservedKey(cmd.Key) {
			return store.NewResponse(store.StatusConditionNotMet, "Path %s is reserved", cmd.Key)
		}
		if err := m.database.Delete(cmd.Key); err != nil {
			return store.NewResponse(store.StatusOperationError, "Operation failed: %s: %v", cmd.Key, err)
		}
		m.numRemoveSuccess.Inc()
		return store.NewResponse(store.StatusOK, "")
	}
}

// expireSessions drops every session that was idle longer than the session timeout
func (m *Machine) expireSessions() {
	for {
		oldest, ok := m.expiry.Peek()
		if !ok || oldest.Priority+m.sessionTimeout >= m.clusterTime {
			break
		}
		m.expiry.Remove(oldest.Key)
		delete(m.sessions, oldest.Key)
		m.numExpired.Inc()
		log.Infof("Expired session %d (idle since cluster time %d)", oldest.Key, oldest.Priority)
	}
	m.numSessions.Store(int64(len(m.sessions)))
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// Query executes a read-only request
func (m *Machine) Query(q store.Query) store.Response {
	switch q.Type {
	case store.QueryTRead:
		m.numReadAttempted.Inc()
		if q.Key == "" {
			return store.NewResponse(store.StatusInvalidArgument, "Invalid param: %s", q.Key)
		}
		value, ok, err := m.database.Get(q.Key)
		if err != nil {
			return store.NewResponse(store.StatusOperationError, "Operation failed: %s: %v", q.Key, err)
		}
		if !ok {
			return store.NewResponse(store.StatusLookupError, "Path not found: %s", q.Key)
		}
		m.numReadSuccess.Inc()
		return store.Response{Status: store.StatusOK, Value: value}

	case store.QueryTRange:
		return m.collectKeys(q.Key, q.End, q.Limit, nil)

	case store.QueryTSearch:
		pattern := q.Key
		return m.collectKeys("", "", q.Limit, func(key string) bool {
			return strings.Contains(key, pattern)
		})

	case store.QueryTStat:
		return store.Response{Status: store.StatusOK, Value: []byte(m.stat(q.Key))}

	case store.QueryTInfo:
		return store.Response{Status: store.StatusOK, Info: m.database.GetInfo()}

	default:
		return store.NewResponse(store.StatusInvalidArgument, "unknown query type: %s", q.Type)
	}
}

// collectKeys lists the keys in [start, end) that match filter (nil matches all)
func (m *Machine) collectKeys(start, end string, limit uint64, filter func(string) bool) store.Response {
	keys := make([]string, 0)
	err := m.database.Iterate(start, end, func(key string, _ []byte) bool {
		if filter != nil && !filter(key) {
			return true
		}
		keys = append(keys, key)
		return limit == 0 || uint64(len(keys)) < limit
	})
	if err != nil {
		return store.NewResponse(store.StatusOperationError, "Operation failed: %v", err)
	}
	return store.Response{Status: store.StatusOK, Keys: keys}
}

// stat renders the diagnostic summary returned by Stat
func (m *Machine) stat(client string) string {
	var sb strings.Builder
	if client != "" {
		sb.WriteString(fmt.Sprintf("client: %s\n", client))
	}
	sb.WriteString(fmt.Sprintf("keys: %d\n", m.database.Len()))
	sb.WriteString(fmt.Sprintf("sessions: %d\n", m.numSessions.Load()))
	sb.WriteString(fmt.Sprintf("numWriteAttempted: %d\n", m.numWriteAttempted.Get()))
	sb.WriteString(fmt.Sprintf("numWriteSuccess: %d\n", m.numWriteSuccess.Get()))
	sb.WriteString(fmt.Sprintf("numReadAttempted: %d\n", m.numReadAttempted.Get()))
	sb.WriteString(fmt.Sprintf("numReadSuccess: %d\n", m.numReadSuccess.Get()))
	sb.WriteString(fmt.Sprintf("numRemoveAttempted: %d\n", m.numRemoveAttempted.Get()))
	sb.WriteString(fmt.Sprintf("numRemoveSuccess: %d\n", m.numRemoveSuccess.Get()))
	return sb.String()
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Session table format (all integers big endian):
//   - 8 bytes: cluster time
//   - 4 bytes: number of sessions
//   - per session: 8 bytes client id, 8 bytes last modified, 8 bytes first outstanding,
//     4 bytes number of responses, then per response 8 bytes sequence number,
//     4 bytes length and the serialized store.Response
//
// A snapshot is a 4 byte length followed by the session table and the database dump.

// PrepareSnapshot captures the session table. It must not run concurrently with Apply.
func (m *Machine) PrepareSnapshot() []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	putUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(scratch[:], v)
		buf.Write(scratch[:8])
	}
	putUint32 := func(v uint32) {
		binary.BigEndian.PutUint32(scratch[:4], v)
		buf.Write(scratch[:4])
	}

	// sort for a deterministic snapshot
	ids := make([]uint64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	putUint64(m.clusterTime)
	putUint32(uint32(len(ids)))
	for _, id := range ids {
		s := m.sessions[id]
		putUint64(id)
		putUint64(s.lastModified)
		putUint64(s.firstOutstanding)

		seqs := make([]uint64, 0, len(s.responses))
		for seq := range s.responses {
			seqs = append(seqs, seq)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

		putUint32(uint32(len(seqs)))
		for _, seq := range seqs {
			res := s.responses[seq]
			data := res.Serialize()
			putUint64(seq)
			putUint32(uint32(len(data)))
			buf.Write(data)
		}
	}
	return buf.Bytes()
}

// SaveSnapshot writes the prepared session table followed by the database dump.
func (m *Machine) SaveSnapshot(prepared []byte, w io.Writer) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(prepared)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(prepared); err != nil {
		return err
	}
	return m.database.Save(w)
}

// RecoverFromSnapshot replaces the whole state of the machine.
func (m *Machine) RecoverFromSnapshot(r io.Reader) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("failed to read session table header: %w", err)
	}
	table := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(r, table); err != nil {
		return fmt.Errorf("failed to read session table: %w", err)
	}

	clusterTime, sessions, err := decodeSessions(table)
	if err != nil {
		return err
	}
	if err := m.database.Load(r); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}

	m.clusterTime = clusterTime
	m.sessions = sessions
	m.expiry.Clear()
	for id, s := range sessions {
		m.expiry.Set(id, s.lastModified)
	}
	m.numSessions.Store(int64(len(sessions)))
	return nil
}

func decodeSessions(data []byte) (uint64, map[uint64]*session, error) {
	errShort := fmt.Errorf("session table truncated")
	pos := 0
	next := func(n int) ([]byte, bool) {
		if pos+n > len(data) {
			return nil, false
		}
		b := data[pos : pos+n]
		pos += n
		return b, true
	}
	u64 := func() (uint64, bool) {
		b, ok := next(8)
		if !ok {
			return 0, false
		}
		return binary.BigEndian.Uint64(b), true
	}
	u32 := func() (uint32, bool) {
		b, ok := next(4)
		if !ok {
			return 0, false
		}
		return binary.BigEndian.Uint32(b), true
	}

	clusterTime, ok := u64()
	if !ok {
		return 0, nil, errShort
	}
	count, ok := u32()
	if !ok {
		return 0, nil, errShort
	}

	sessions := make(map[uint64]*session, count)
	for i := uint32(0); i < count; i++ {
		id, ok1 := u64()
		lastModified, ok2 := u64()
		firstOutstanding, ok3 := u64()
		numResponses, ok4 := u32()
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return 0, nil, errShort
		}

		s := &session{
			lastModified:     lastModified,
			firstOutstanding: firstOutstanding,
			responses:        make(map[uint64]store.Response, numResponses),
		}
		for j := uint32(0); j < numResponses; j++ {
			seq, ok1 := u64()
			size, ok2 := u32()
			if !ok1 || !ok2 {
				return 0, nil, errShort
			}
			data, ok := next(int(size))
			if !ok {
				return 0, nil, errShort
			}
			var res store.Response
			if err := res.Deserialize(data); err != nil {
				return 0, nil, fmt.Errorf("invalid cached response of session %d: %w", id, err)
			}
			s.responses[seq] = res
		}
		sessions[id] = s
	}
	return clusterTime, sessions, nil
}
