// Package cmd implements the command-line interface of raftstore. It provides
// commands for running a server, for using a cluster as a client and for
// maintaining the data directory of a stopped server.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures a raftstore server
//   - store: Key-value operations through an exactly-once client session (get, set, rm, rng, se, stat, perf)
//   - cluster: Reads and changes the cluster configuration, queries server info and stats
//   - gateway: Runs the HTTP gateway in front of a cluster
//   - backup: Checkpoints, dumps and restores the pebble engine of a shard
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable RAFTSTORE_<FLAG> (e.g. RAFTSTORE_TIMEOUT=15),
// .env and .env.local files in the working directory are loaded on start.
//
// See raftstore -help for a list of all commands.
package cmd
