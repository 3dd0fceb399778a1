package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/freeeve/chessdataset/internal/config"
	"github.com/freeeve/chessdataset/internal/logx"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"json-logs":  "log.json",
	"source-dir": "source_dir",
	"corpus":     "corpus",
	"player":     "player",
	"eco-dir":    "eco_dir",
	"stockfish":  "engine.path",
	"depth":      "engine.depth",
	"hash":       "engine.hash_mb",
	"threads":    "engine.threads",
	"workers":    "engine.workers",
	"retries":    "engine.retries",
	"timeout":    "engine.timeout",
	"cache-size": "engine.cache_size",
	"cache-file": "engine.cache_file",
	"games":      "output.games",
	"moves":      "output.moves",
	"sqlite":     "output.sqlite",
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        zerolog.Logger
	runID      string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "chessdataset",
		Short: "Build a labeled chess position dataset from PGN game records",
		Long: `chessdataset merges raw PGN files into one deduplicated corpus and
annotates a player's moves with a UCI engine's best move and evaluation,
producing a games table and a moves table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "path to a YAML config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("json-logs", false, "emit JSON formatted logs")

	root.AddCommand(newMergeCmd(a), newAnnotateCmd(a), newRunCmd(a), newVersionCmd())
	return root
}

// setup binds the flags of the running command, loads the configuration and
// creates the run logger.
func (a *app) setup(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.runID = uuid.NewString()
	a.log = logx.NewLogger(logx.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		Out:   cmd.ErrOrStderr(),
	}).With().Str("run_id", a.runID).Str("cmd", cmd.Name()).Logger()
	return nil
}

// fail logs a command error and hands it back to cobra.
func (a *app) fail(err error, msg string) error {
	a.log.Error().Err(err).Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}

func addMergeFlags(fs *pflag.FlagSet) {
	fs.String("source-dir", "data_pgn", "directory of .pgn / .pgn.zst files to merge")
}

func addCorpusFlag(fs *pflag.FlagSet) {
	fs.String("corpus", "user_pgn.pgn", "merged corpus path (.zst suffix compresses)")
}

func addAnnotateFlags(fs *pflag.FlagSet) {
	fs.String("player", "", "target player name, matched exactly (env user_name)")
	fs.String("eco-dir", "", "directory of ECO .tsv files used when a game has no ECO header")
	fs.String("stockfish", "stockfish", "UCI engine binary (env STOCKFISH_PATH)")
	fs.Int("depth", 14, "engine search depth")
	fs.Int("hash", 128, "engine hash table size in MB")
	fs.Int("threads", 1, "engine threads per process")
	fs.Int("workers", 1, "engine processes analyzing games in parallel")
	fs.Int("retries", 2, "engine restarts allowed per query")
	fs.Duration("timeout", 0, "per-query engine timeout (0 = none)")
	fs.Int("cache-size", 0, "analyses remembered across games (0 = no cache)")
	fs.String("cache-file", "", "file persisting the analysis cache between runs (.zst compresses)")
	fs.String("games", "games.csv", "games table output path")
	fs.String("moves", "moves.csv", "moves table output path")
	fs.String("sqlite", "", "optional SQLite database receiving both tables")
}
