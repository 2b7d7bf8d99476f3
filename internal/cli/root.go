package cli

// Package cli wires the jscrambler command tree: configuration loading, logging
// and the project commands built on internal/project.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"jscrambler-client/internal/config"
	"jscrambler-client/internal/logger"
	"jscrambler-client/internal/project"
	"jscrambler-client/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app holds the state shared by every command of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	c      palette

	cfgPath    string
	silent     bool
	logFile    string
	logLevel   string
	host       string
	port       int
	apiVersion int
	historyDB  string

	cfg     *config.Config
	logger  *slog.Logger
	history *store.Store
	closers []io.Closer
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{out: out, errOut: errOut, c: newPalette(!color.NoColor)}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(errOut, "%s %v\n", a.c.red("Error:"), err)
		}
		return 1
	}
	return 0
}

// newRootCmd creates the root command and all subcommands for the CLI.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jscrambler",
		Short: "Upload sources to JScrambler and fetch the protected result",
		Long: `jscrambler uploads the files matched by filesSrc, waits for the remote
job to finish, downloads the result into filesDest and optionally deletes
the project from the service. Running it without a subcommand is the same
as "jscrambler process".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsConfig(cmd) {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", config.DefaultPath, "configuration file (JSON or YAML)")
	pf.BoolVarP(&a.silent, "silent", "s", false, "only print errors and results")
	pf.StringVar(&a.logFile, "log-file", "", "write a detailed log to this file")
	pf.StringVar(&a.logLevel, "log-level", "warn", "console log level (debug, info, warn, error)")
	pf.StringVar(&a.host, "host", "", "API host")
	pf.IntVar(&a.port, "port", 0, "API port")
	pf.IntVar(&a.apiVersion, "api-version", 0, "API version")
	pf.StringVar(&a.historyDB, "history-db", "", "SQLite database recording created projects")

	processCmd := ProcessCmd(a)
	rootCmd.RunE = processCmd.RunE
	rootCmd.Flags().AddFlagSet(processCmd.Flags())

	rootCmd.AddCommand(
		processCmd,
		UploadCmd(a),
		PollCmd(a),
		DownloadCmd(a),
		DeleteCmd(a),
		InfoCmd(a),
		WatchCmd(a),
		HistoryCmd(a),
		PruneCmd(a),
		InitCmd(a),
	)
	return rootCmd
}

// needsConfig reports whether cmd runs against a loaded configuration. init
// writes one; help and shell completion work without it.
func needsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "init", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return false
	}
	return !(cmd.HasParent() && cmd.Parent().Name() == "completion")
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.host
	}
	if flags.Changed("port") {
		cfg.Port = a.port
	}
	if flags.Changed("api-version") {
		cfg.APIVersion = a.apiVersion
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = a.historyDB
	}
	if flags.Changed("log-file") {
		cfg.LogFile = a.logFile
	}
	a.cfg = cfg

	level := logger.ParseLevel(a.logLevel)
	if a.silent && level < slog.LevelError {
		level = slog.LevelError
	}

	var file io.Writer
	if cfg.LogFile != "" {
		rotator := &logger.LogRotator{
			Filename:   cfg.LogFile,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		}
		a.closers = append(a.closers, rotator)
		file = rotator
	}
	a.logger = logger.Setup(a.errOut, file, level)
	a.logger.Debug("Configuration loaded", "path", a.cfgPath, "endpoint", cfg.Endpoint().BaseURL())
	return nil
}

// openHistory opens the configured history database once. It returns nil when
// none is configured.
func (a *app) openHistory() (*store.Store, error) {
	if a.history != nil || a.cfg.HistoryDB == "" {
		return a.history, nil
	}
	s, err := store.NewStore(a.cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", a.cfg.HistoryDB, err)
	}
	a.history = s
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *app) requireHistory() (*store.Store, error) {
	s, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &config.ConfigError{Field: "historyDB", Reason: "required by this command (set it or pass --history-db)"}
	}
	return s, nil
}

// newProject builds a workflow client reporting to the console.
func (a *app) newProject() (*project.Client, error) {
	client := project.NewFromConfig(a.cfg, a.logger)
	client.Observer = &reporter{out: a.out, silent: a.silent, dest: a.cfg.FilesDest, c: a.c}

	history, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if history != nil {
		client.History = history
	}
	return client, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}
