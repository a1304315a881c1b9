package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/klauspost/compress/flate"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("gateway")

// Value encodings of get and POST set
const (
	TypeCompact = "compact" // base64 of the deflated value, inside the JSON envelope
	TypeRaw     = "raw"     // the value as body
	TypeDeflate = "deflate" // the deflated value as body
)

// maxBodySize bounds POST bodies
const maxBodySize = 64 << 20

// Envelope is the JSON body of every API response except raw and deflate gets
type Envelope struct {
	Code   store.StatusCode `json:"code"`
	Info   string           `json:"info"`
	Value  any              `json:"value,omitempty"`
	MD5Sum string           `json:"md5sum,omitempty"`
}

// SetRequest is the JSON body of POST set
type SetRequest struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	MD5Sum string `json:"md5sum"`
}

// Gateway serves the HTTP API on top of a store. Databases are key prefixes:
// the key k of database db is stored as "db_k".
type Gateway struct {
	store   store.IStore
	metrics *metrics.Set
	mux     *http.ServeMux

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// New creates a gateway for s. Request counters are registered in set, which is also
// exposed at /metrics together with the process metrics.
func New(s store.IStore, set *metrics.Set) *Gateway {
	if set == nil {
		set = metrics.NewSet()
	}
	g := &Gateway{store: s, metrics: set, mux: http.NewServeMux()}

	g.mux.HandleFunc("GET /raftstore/api/v1/stat", g.instrument("stat", g.handleStat))
	g.mux.HandleFunc("GET /raftstore/api/{db}/v1/get", g.instrument("get", g.handleGet))
	g.mux.HandleFunc("GET /raftstore/api/{db}/v1/set", g.instrument("set", g.handleSet))
	g.mux.HandleFunc("POST /raftstore/api/{db}/v1/set", g.instrument("post_set", g.handlePostSet))
	g.mux.HandleFunc("GET /raftstore/api/{db}/v1/remove", g.instrument("remove", g.handleRemove))
	g.mux.HandleFunc("GET /raftstore/api/{db}/v1/range", g.instrument("range", g.handleRange))
	g.mux.HandleFunc("GET /raftstore/api/{db}/v1/search", g.instrument("search", g.handleSearch))
	g.mux.HandleFunc("GET /metrics", g.handleMetrics)
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// ListenAndServe serves the gateway on addr until Close is called
func (g *Gateway) ListenAndServe(addr string) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.server = &http.Server{Addr: addr, Handler: g}
	server := g.server
	g.mu.Unlock()

	Logger.Infof("Starting HTTP gateway on %s", addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the HTTP server down, waiting at most 5 seconds for open requests
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (g *Gateway) handleStat(w http.ResponseWriter, r *http.Request) {
	stat, res := g.store.Stat(r.URL.Query().Get("client"))
	env := Envelope{Code: res.Status, Info: res.Error}
	if res.IsOK() {
		env.Value = stat
	}
	writeJSON(w, env)
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	typ := r.URL.Query().Get("type")
	binary := typ == TypeRaw || typ == TypeDeflate

	var val []byte
	var res store.Result
	switch {
	case key == "":
		res = store.NewResult(store.StatusInvalidArgument, "Invalid param: key")
	case typ != "" && typ != TypeCompact && !binary:
		res = store.NewResult(store.StatusInvalidArgument, "Invalid param: type")
	default:
		val, res = g.store.Read(dbKey(r, key))
	}

	if res.IsOK() && typ != TypeRaw && typ != "" {
		var err error
		if val, err = deflate(val); err != nil {
			res = store.NewResult(store.StatusUnknownError, "deflate: %v", err)
		}
	}

	// raw and deflate answer with the value as body, errors only carry the HTTP status
	if binary {
		if !res.IsOK() {
			Logger.Debugf("get %s (%s) failed: %s", key, typ, res)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if contentType := contentTypeOf(key); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		if typ == TypeDeflate {
			w.Header().Set("Content-Encoding", "deflate")
		}
		if _, err := w.Write(val); err != nil {
			Logger.Warningf("Failed to write response: %v", err)
		}
		return
	}

	env := Envelope{Code: res.Status, Info: res.Error}
	if res.IsOK() {
		if typ == TypeCompact {
			env.Value = base64.StdEncoding.EncodeToString(val)
		} else {
			env.Value = string(val)
		}
	}
	writeJSON(w, env)
}

func (g *Gateway) handleSet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	value := r.URL.Query().Get("value")

	var res store.Result
	if key == "" || value == "" {
		res = store.NewResult(store.StatusInvalidArgument, "Invalid param: key,value")
	} else {
		res = g.store.Write(dbKey(r, key), []byte(value))
	}
	writeJSON(w, Envelope{Code: res.Status, Info: res.Error})
}

func (g *Gateway) handlePostSet(w http.ResponseWriter, r *http.Request) {
	var req SetRequest
	res := g.postSet(r, &req)

	env := Envelope{Code: res.Status, Info: res.Error}
	if res.IsOK() {
		// echo the checksum as sent, the client compares it verbatim
		env.MD5Sum = req.MD5Sum
	}
	writeJSON(w, env)
}

func (g *Gateway) postSet(r *http.Request, req *SetRequest) store.Result {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	defer r.Body.Close()
	if err != nil {
		return store.NewResult(store.StatusInvalidArgument, "failed to read body: %v", err)
	}
	if err := json.Unmarshal(body, req); err != nil {
		Logger.Debugf("parse error for POST set: %v", err)
		return store.NewResult(store.StatusInvalidArgument, "invalid JSON body: %v", err)
	}
	if req.Key == "" || req.Value == "" || req.MD5Sum == "" || (req.Type != "" && req.Type != TypeCompact) {
		return store.NewResult(store.StatusInvalidArgument, "Invalid param: key,value,md5sum,type")
	}

	val := []byte(req.Value)
	if req.Type == TypeCompact {
		if val, err = decodeCompact(req.Value); err != nil {
			return store.NewResult(store.StatusInvalidArgument, "invalid compact value: %v", err)
		}
	}
	if len(val) == 0 {
		return store.NewResult(store.StatusInvalidArgument, "Invalid param: value")
	}

	sum := md5.Sum(val)
	if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, req.MD5Sum) {
		Logger.Debugf("md5sum mismatch for %s: expected %s, got %s", req.Key, req.MD5Sum, got)
		return store.NewResult(store.StatusInvalidArgument, "md5sum mismatch: expected %s, got %s", req.MD5Sum, got)
	}

	return g.store.Write(dbKey(r, req.Key), val)
}

func (g *Gateway) handleRemove(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	var res store.Result
	if key == "" {
		res = store.NewResult(store.StatusInvalidArgument, "Invalid param: key")
	} else {
		res = g.store.Remove(dbKey(r, key))
	}
	writeJSON(w, Envelope{Code: res.Status, Info: res.Error})
}

func (g *Gateway) handleRange(w http.ResponseWriter, r *http.Request) {
	db := r.PathValue("db")
	q := r.URL.Query()

	limit, res := parseLimit(q.Get("limit"))
	var keys []string
	if res.IsOK() {
		// keys of a database are "db_...", "db~" sorts right behind all of them
		end := db + "~"
		if e := q.Get("end"); e != "" {
			end = db + "_" + e
		}
		keys, res = g.store.Range(db+"_"+q.Get("start"), end, limit)
	}

	env := Envelope{Code: res.Status, Info: res.Error}
	if stripped := stripPrefix(keys, db+"_"); len(stripped) > 0 {
		env.Value = stripped
	}
	writeJSON(w, env)
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	db := r.PathValue("db")
	q := r.URL.Query()

	limit, res := parseLimit(q.Get("limit"))
	var keys []string
	if res.IsOK() {
		keys, res = g.store.Search(q.Get("search"), limit)
	}

	env := Envelope{Code: res.Status, Info: res.Error}
	if stripped := stripPrefix(keys, db+"_"); len(stripped) > 0 {
		env.Value = stripped
	}
	writeJSON(w, env)
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	g.metrics.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// instrument counts requests and records their duration per operation
func (g *Gateway) instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	requests := g.metrics.GetOrCreateCounter(fmt.Sprintf(`raftstore_gateway_requests_total{op=%q}`, op))
	duration := g.metrics.GetOrCreateHistogram(fmt.Sprintf(`raftstore_gateway_request_duration_seconds{op=%q}`, op))

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requests.Inc()
		next(w, r)
		duration.UpdateDuration(start)
		Logger.Debugf("%s %s took %s", r.Method, r.URL.Path, time.Since(start))
	}
}

// dbKey returns the store key of key in the database of the request path
func dbKey(r *http.Request, key string) string {
	return r.PathValue("db") + "_" + key
}

// stripPrefix returns the keys with prefix, without it. Keys are sorted, so the scan
// stops at the first miss after a hit.
func stripPrefix(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key[len(prefix):])
		} else if len(out) > 0 {
			break
		}
	}
	return out
}

func parseLimit(s string) (uint64, store.Result) {
	if s == "" {
		return 0, store.OK()
	}
	limit, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, store.NewResult(store.StatusInvalidArgument, "Invalid param: limit")
	}
	return limit, store.OK()
}

// contentTypeOf derives the content type from a short file extension of key
func contentTypeOf(key string) string {
	key = strings.ToLower(key)
	pos := strings.LastIndexByte(key, '.')
	if pos < 0 || len(key)-pos >= 6 {
		return ""
	}
	return mime.TypeByExtension(key[pos:])
}

func deflate(val []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(val); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeCompact reverses the compact encoding: base64, then inflate
func decodeCompact(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(io.LimitReader(fr, maxBodySize))
}

func writeJSON(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		Logger.Warningf("Failed to write response: %v", err)
	}
}
