package store

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Reads the contents of a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, res := rpcStore.Read(args[0])
			if !res.IsOK() {
				return res.Err()
			}
			fmt.Printf("%s\n", val)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [path] [contents]",
		Short: "Writes the contents of a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report("set", rpcStore.Write(args[0], []byte(args[1])))
		},
	}
	setpCmd = &cobra.Command{
		Use:   "setp [path] [file]",
		Short: "Writes the contents of a file to a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contents, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return report("setp", rpcStore.Write(args[0], contents))
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [path]",
		Short: "Removes a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report("rm", rpcStore.Remove(args[0]))
		},
	}
	rngCmd = &cobra.Command{
		Use:   "rng [start] [end] [limit]",
		Short: "Lists the keys in [start, end), an empty end is unbounded",
		Args:  cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end string
			if len(args) > 0 {
				start = args[0]
			}
			if len(args) > 1 {
				end = args[1]
			}
			limit, err := limitArg(args, 2)
			if err != nil {
				return err
			}
			return printKeys(rpcStore.Range(start, end, limit))
		},
	}
	seCmd = &cobra.Command{
		Use:   "se [pattern] [limit]",
		Short: "Lists the keys containing pattern",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := limitArg(args, 1)
			if err != nil {
				return err
			}
			return printKeys(rpcStore.Search(args[0], limit))
		},
	}
	statCmd = &cobra.Command{
		Use:   "stat [client]",
		Short: "Prints a diagnostic summary of the store",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var client string
			if len(args) > 0 {
				client = args[0]
			}
			stat, res := rpcStore.Stat(client)
			if !res.IsOK() {
				return res.Err()
			}
			fmt.Println(stat)
			return nil
		},
	}
)

// report prints the outcome of a write-class command
func report(op string, res store.Result) error {
	if !res.IsOK() {
		return res.Err()
	}
	fmt.Printf("%s successfully\n", op)
	return nil
}

func printKeys(keys []string, res store.Result) error {
	if !res.IsOK() {
		return res.Err()
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

// limitArg parses the optional limit at args[i], 0 if absent
func limitArg(args []string, i int) (uint64, error) {
	if len(args) <= i {
		return 0, nil
	}
	limit, err := strconv.ParseUint(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("limit must be a number: %w", err)
	}
	return limit, nil
}
