// Package internal provides the replicated state machine shared by the lstore and
// dstore shards. It should not be imported by code outside of lib/store.
//
// The Machine applies store.Command values in log order and answers store.Query
// values at any time. Everything Apply does depends only on the command and the
// machine state, so all replicas reach the same state:
//
//   - Sessions: OpenSession registers a client under the log index of the command.
//     Write-class commands carry an ExactlyOnceTag. The machine caches the response
//     of every (client id, sequence number) and answers a retry from the cache.
//     Responses below the tag's FirstOutstanding are dropped.
//
//   - Cluster Time: commands carry the proposal timestamp of the leader. The machine
//     keeps the maximum as cluster time and expires sessions that have been idle
//     longer than the session timeout. Commands of expired sessions are answered
//     with SESSION_EXPIRED.
//
//   - Reserved Keys: keys of the form "[[...]]" can not be written. Clients use a
//     write to such a key as a keep-alive that refreshes their session.
//
// Snapshot Format:
//
//	A snapshot consists of the session table (length prefixed) followed by the
//	database dump in the db snapshot format. Snapshots are fuzzy: the database dump
//	may contain writes newer than the session table. Replaying those writes after
//	recovery yields the same state, since writes and removes are idempotent.
package internal
