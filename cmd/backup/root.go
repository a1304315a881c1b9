package backup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/ValentinKolb/raftstore/lib/db/engines/pebble"
	"github.com/ValentinKolb/raftstore/rpc/server"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BackupCommands works on the pebble data directory of a stopped server
	BackupCommands = &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore the pebble engine of a shard",
		Long: `Back up and restore the pebble engine of a shard.
The commands open the data directory directly, the server must be stopped.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
	}
	backCmd = &cobra.Command{
		Use:   "back [dest-dir]",
		Short: "Writes a checkpoint of the shard database to dest-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine *pebble.Engine) error {
				if err := engine.Checkpoint(args[0]); err != nil {
					return err
				}
				fmt.Printf("checkpoint written to %s\n", args[0])
				return nil
			})
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump [file]",
		Short: "Dumps all entries of the shard to a file (zstd compressed for *.zst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine *pebble.Engine) error {
				return dump(engine, args[0])
			})
		},
	}
	restoreCmd = &cobra.Command{
		Use:   "restore [file]",
		Short: "Replaces all entries of the shard with a dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(engine *pebble.Engine) error {
				return restore(engine, args[0])
			})
		},
	}
)

func init() {
	key := "data-dir"
	BackupCommands.PersistentFlags().String(key, "data", util.WrapString("The data directory of the server"))

	key = "shard"
	BackupCommands.PersistentFlags().Int(key, 100, util.WrapString("ID of the shard"))

	BackupCommands.AddCommand(backCmd)
	BackupCommands.AddCommand(dumpCmd)
	BackupCommands.AddCommand(restoreCmd)
}

// withEngine opens the pebble engine of the configured shard and closes it after fn
func withEngine(fn func(engine *pebble.Engine) error) (err error) {
	dir := server.PebbleDir(viper.GetString("data-dir"), util.GetShardID())
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("no pebble database for shard %d: %w", util.GetShardID(), err)
	}

	engine, err := pebble.Open(pebble.Options{Dir: dir})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()
	return fn(engine)
}

// --------------------------------------------------------------------------
// Dump and Restore
// --------------------------------------------------------------------------

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// dump writes the entries of engine to path
func dump(engine *pebble.Engine, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	var w io.Writer = f
	if compressed(path) {
		var enc *zstd.Encoder
		if enc, err = zstd.NewWriter(f); err != nil {
			return err
		}
		defer func() {
			if cerr := enc.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}()
		w = enc
	}

	if err := engine.Save(w); err != nil {
		return fmt.Errorf("failed to dump shard: %w", err)
	}
	fmt.Printf("dumped %d entries to %s\n", engine.Len(), path)
	return nil
}

// restore replaces the entries of engine with the dump at path
func restore(engine *pebble.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	}

	if err := engine.Load(r); err != nil {
		return fmt.Errorf("failed to restore shard: %w", err)
	}
	fmt.Printf("restored %d entries from %s\n", engine.Len(), path)
	return nil
}
