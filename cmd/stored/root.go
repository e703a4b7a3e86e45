// Root command for the stored CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	stored "github.com/goliatone/go-stored"
	"github.com/goliatone/go-stored/pkg/activity"
	"github.com/goliatone/go-stored/pkg/configtree"
	"github.com/goliatone/go-stored/pkg/quest"
	"github.com/goliatone/go-stored/pkg/servertime"
	"github.com/goliatone/go-stored/pkg/state"
	"github.com/goliatone/go-stored/pkg/state/sqlitestore"
)

// flagValues holds the raw global flag values.
type flagValues struct {
	configDir  string
	store      string
	path       string
	format     string
	profile    string
	serverTZ   string
	autoUpdate bool
	resetTime  string
	quests     string
	json       bool
	events     bool
	verbose    bool
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	flags    flagValues
	settings settings
	logger   *slog.Logger
	clock    *servertime.Clock
	tree     *configtree.Tree
	quests   *quest.Table
	closers  []func() error
}

func newApp() *app {
	return &app{}
}

// run executes one invocation and releases the store afterwards.
func (a *app) run(args []string, stdout, stderr io.Writer) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	return errors.Join(err, a.close())
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stored",
		Short: "Inspect and edit persisted game state records",
		Long: `stored reads and writes typed records kept in a configuration tree.
Records are addressed by type and dotted key, e.g. "counter dashboard.stamina".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.prepare,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", ".", "directory holding stored.yaml")
	pf.StringVar(&a.flags.store, "store", storeFile, "state store: file, sqlite or memory")
	pf.StringVar(&a.flags.path, "path", "", "store location (default: .stored or .stored/stored.db)")
	pf.StringVar(&a.flags.format, "format", "yaml", "file store encoding: yaml or json")
	pf.StringVar(&a.flags.profile, "profile", state.DefaultProfile, "tree profile name")
	pf.StringVar(&a.flags.serverTZ, "server-tz", "", "server timezone, IANA name or offset such as +08:00")
	pf.BoolVar(&a.flags.autoUpdate, "auto-update", true, "flush every write immediately")
	pf.StringVar(&a.flags.resetTime, "reset-time", stored.DailyReset, "daily reset time, HH:MM")
	pf.StringVar(&a.flags.quests, "quests", "", "quest keyword list (yaml)")
	pf.BoolVar(&a.flags.json, "json", false, "output as JSON")
	pf.BoolVar(&a.flags.events, "events", false, "log activity events")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log record diagnostics")

	root.AddCommand(
		a.showCmd(),
		a.setCmd(),
		a.expiredCmd(),
		a.questsCmd(),
		a.evalCmd(),
		a.dumpCmd(),
		a.typesCmd(),
	)
	return root
}

// prepare resolves settings and loads the tree before any subcommand runs.
func (a *app) prepare(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if a.flags.verbose {
		level = slog.LevelInfo
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	// types only reads the registry.
	if cmd.Name() == "types" {
		return nil
	}

	v, err := loadConfig(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := resolveSettings(v)
	if err != nil {
		return err
	}
	a.flags.apply(cmd, &s)
	if err := s.validate(); err != nil {
		return err
	}
	a.settings = s

	loc, err := servertime.ParseLocation(s.ServerTZ)
	if err != nil {
		return err
	}
	a.clock = servertime.New(loc)
	if _, err := a.clock.LastBoundary(s.ResetTime); err != nil {
		return fmt.Errorf("reset time: %w", err)
	}

	if s.Quests != "" {
		table, err := quest.Load(s.Quests)
		if err != nil {
			return err
		}
		a.quests = table
	}

	store, err := a.openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	opts := []configtree.Option{
		configtree.WithStore(store, state.Ref{Profile: s.Profile}),
		configtree.WithTemplate(templateFrom(v)),
		configtree.WithAutoUpdate(s.AutoUpdate),
		configtree.WithLogger(stored.NewSlogLogger(a.logger)),
		configtree.WithClock(a.clock.Current),
	}
	if a.flags.events {
		opts = append(opts, configtree.WithEmitter(activity.NewEmitter(
			activity.Hooks{activity.HookFunc(a.logEvent)},
			activity.Config{Enabled: true},
		)))
	}
	a.tree = configtree.New(opts...)
	return a.tree.Load(cmd.Context())
}

func (a *app) openStore() (state.Store, error) {
	s := a.settings
	switch strings.ToLower(strings.TrimSpace(s.Store)) {
	case storeMemory:
		return state.NewMemoryStore(), nil
	case storeSQLite:
		path := s.Path
		if path == "" {
			path = filepath.Join(defaultDataDir, defaultDBFile)
		}
		store, err := sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		dir := s.Path
		if dir == "" {
			dir = defaultDataDir
		}
		return state.NewFileStore(dir, state.Format(strings.ToLower(s.Format)))
	}
}

func (a *app) close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) logEvent(_ context.Context, event activity.Event) error {
	a.logger.Warn("activity",
		slog.String("verb", event.Verb),
		slog.String("object", event.ObjectType+":"+event.ObjectID),
		slog.String("channel", event.Channel),
		slog.Any("metadata", event.Metadata),
	)
	return nil
}

// recordOptions wires the server clock, reset boundary and quest table into
// every record built by the CLI.
func (a *app) recordOptions(extra ...stored.Option) []stored.Option {
	opts := []stored.Option{
		stored.WithLogger(stored.NewSlogLogger(a.logger)),
		stored.WithClock(a.clock.Current),
		stored.WithBoundaryResolver(a.clock),
		stored.WithExpireAt(a.settings.ResetTime),
	}
	if a.quests != nil {
		opts = append(opts, stored.WithQuestResolver(a.quests))
	}
	return append(opts, extra...)
}

// openRecord builds a bound record of a registered type.
func (a *app) openRecord(typeName, key string, extra ...stored.Option) (stored.Stored, error) {
	rec, err := stored.NewByType(typeName, key, a.recordOptions(extra...)...)
	if err != nil {
		return nil, fmt.Errorf("%w (valid: %s)", err, strings.Join(stored.Types(), ", "))
	}
	rec.Bind(a.tree)
	return rec, nil
}

// write renders v as YAML, or JSON with --json.
func (a *app) write(w io.Writer, v any) error {
	if a.flags.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
