// Package gateway serves an HTTP API on top of a store.IStore.
//
// Every database is a key prefix: the key k of database db is stored as
// "db_k". The routes are
//
//	GET  /raftstore/api/v1/stat?client=
//	GET  /raftstore/api/{db}/v1/get?key=&type=compact|raw|deflate
//	GET  /raftstore/api/{db}/v1/set?key=&value=
//	POST /raftstore/api/{db}/v1/set     {"type", "key", "value", "md5sum"}
//	GET  /raftstore/api/{db}/v1/remove?key=
//	GET  /raftstore/api/{db}/v1/range?start=&end=&limit=
//	GET  /raftstore/api/{db}/v1/search?search=&limit=
//	GET  /metrics
//
// Responses are JSON envelopes {"code", "info", "value"} where code is the
// store status. Only raw and deflate gets answer with the value itself, using
// HTTP 500 for every failure.
package gateway
