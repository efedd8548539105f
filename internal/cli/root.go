// Package cli implements the docvcs command line: the server and a client
// for every engine operation.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nainya/docvcs/internal/config"
	"github.com/nainya/docvcs/internal/logger"
	"github.com/nainya/docvcs/internal/server"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/engine"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/storage/memstore"
	"github.com/nainya/docvcs/pkg/storage/sqlstore"
)

// Backend is the operation set shared by a local *engine.Engine and a remote
// *server.Client.
type Backend interface {
	InitializeDocument(ctx context.Context, documentID, content string, opts model.InitOptions) (*model.Version, error)
	CreateVersion(ctx context.Context, documentID, branchName, content string, meta model.VersionMeta) (*model.Version, error)
	GetVersion(ctx context.Context, documentID, versionID string) (*model.Version, error)
	Resolve(ctx context.Context, documentID, ref string) (*model.Version, error)
	GetDocumentStats(ctx context.Context, documentID string) (*model.DocumentStats, error)
	VerifyDocument(ctx context.Context, documentID string) error
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	CreateBranch(ctx context.Context, documentID, name, fromVersionID string, opts model.BranchOptions) (*model.Branch, error)
	GetBranch(ctx context.Context, documentID, name string) (*model.Branch, error)
	ListBranches(ctx context.Context, documentID string) ([]*model.Branch, error)
	DeleteBranch(ctx context.Context, documentID, name string) error
	RenameBranch(ctx context.Context, documentID, from, to string) (*model.Branch, error)
	SetProtection(ctx context.Context, documentID, name string, protected bool) (*model.Branch, error)
	MergeBranches(ctx context.Context, documentID, source, target string, opts model.MergeOptions) (*merge.Result, error)
	CreateTag(ctx context.Context, documentID, versionID, name string, opts model.TagOptions) (*model.Tag, error)
	GetTag(ctx context.Context, documentID, name string) (*model.Tag, error)
	ListTags(ctx context.Context, documentID string, tagType model.TagType) ([]*model.Tag, error)
	GetVersionHistory(ctx context.Context, documentID string, opts model.HistoryOptions) (*history.Page, error)
	CompareVersions(ctx context.Context, documentID, fromVersionID, toVersionID string) (*model.DiffResult, error)
	RevertToVersion(ctx context.Context, documentID, targetVersionID string, opts model.RevertOptions) (*model.Version, error)
}

var (
	_ Backend = (*engine.Engine)(nil)
	_ Backend = (*server.Client)(nil)
)

// App carries state shared by all commands of one invocation.
type App struct {
	viper   *viper.Viper
	cfgFile string
	addr    string
	asJSON  bool
	author  string
	timeout time.Duration

	cfg *config.Config
	log *logger.Logger
	out io.Writer
	in  io.Reader
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	app := &App{viper: viper.New()}

	root := &cobra.Command{
		Use:   "docvcs",
		Short: "Version control for text documents",
		Long: `docvcs keeps the full history of text documents: versions, branches,
three-way merges, tags, diffs and reverts.

Client commands run against a local store unless --addr points them at a
running "docvcs serve".

Examples:
  docvcs init handbook --file handbook.md
  docvcs commit handbook --file handbook.md -m "Add onboarding"
  docvcs branch create handbook draft
  docvcs merge handbook draft --into main
  docvcs log handbook --since "last monday"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "config file (default ./docvcs.yaml or $HOME/.config/docvcs/docvcs.yaml)")
	flags.StringVar(&app.addr, "addr", "", "address of a docvcs server; empty uses the local store")
	flags.BoolVar(&app.asJSON, "json", false, "print results as JSON")
	flags.StringVar(&app.author, "author", os.Getenv("USER"), "author recorded on new versions")
	flags.DurationVar(&app.timeout, "timeout", 30*time.Second, "deadline for one command")
	flags.String("db", "", "SQLite database path (storage.path)")
	flags.String("storage", "", "storage driver: sqlite or memory (storage.driver)")
	flags.String("log-level", "", "log level (log.level)")
	_ = app.viper.BindPFlag("storage.path", flags.Lookup("db"))
	_ = app.viper.BindPFlag("storage.driver", flags.Lookup("storage"))
	_ = app.viper.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newServeCommand(app),
		newDocsCommand(app),
		newInitCommand(app),
		newCommitCommand(app),
		newShowCommand(app),
		newLogCommand(app),
		newDiffCommand(app),
		newBranchCommand(app),
		newMergeCommand(app),
		newTagCommand(app),
		newRevertCommand(app),
		newStatsCommand(app),
		newVerifyCommand(app),
	)
	return root
}

// Execute runs the command line and returns the process exit code. SIGINT
// and SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *App) init(cmd *cobra.Command) error {
	cfg, err := config.LoadWith(a.viper, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.Caller,
		Output:     cmd.ErrOrStderr(),
	})
	a.out = cmd.OutOrStdout()
	a.in = cmd.InOrStdin()
	return nil
}

// engineOptions translates configuration into engine options.
func (a *App) engineOptions(rec engine.Recorder) (engine.Options, error) {
	unit, err := diff.ParseUnit(a.cfg.Engine.Granularity)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		SnapshotInterval: a.cfg.Engine.SnapshotInterval,
		CacheSize:        a.cfg.Engine.CacheSize,
		Granularity:      unit,
		LockTimeout:      a.cfg.Engine.LockTimeout,
		Logger:           a.log.EngineLogger(),
		Recorder:         rec,
	}, nil
}

// openRepository opens the configured storage driver.
func (a *App) openRepository(ctx context.Context) (model.Repository, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		a.log.DbLogger(config.DriverSQLite).Debug().Str("path", a.cfg.Storage.Path).Msg("opening repository")
		return sqlstore.Open(ctx, sqlstore.Options{
			Path:        a.cfg.Storage.Path,
			Timeout:     a.cfg.Storage.Timeout,
			BusyTimeout: a.cfg.Storage.BusyTimeout,
			ReadConns:   a.cfg.Storage.ReadConns,
		})
	}
}

// backend returns the remote client when --addr is set, otherwise a local
// engine over the configured store. The returned func releases it.
func (a *App) backend(ctx context.Context) (Backend, func(), error) {
	if a.addr != "" {
		client, conn, err := server.Dial(a.addr)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { conn.Close() }, nil
	}
	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts, err := a.engineOptions(nil)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return engine.New(repo, opts), func() { repo.Close() }, nil
}

// run wraps a client command: it opens the backend under the command
// deadline and logs the outcome.
func (a *App) run(cmd *cobra.Command, op, documentID string, fn func(ctx context.Context, b Backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	b, release, err := a.backend(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	err = fn(ctx, b)
	a.log.LogOperation(op, documentID, time.Since(start), err)
	return err
}

// print writes v as indented JSON under --json, otherwise calls text.
func (a *App) print(v any, text func(w io.Writer)) error {
	if a.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}
