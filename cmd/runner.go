package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/credentials"
	"github.com/desertthunder/tunedeck/internal/library"
	"github.com/desertthunder/tunedeck/internal/notify"
	"github.com/desertthunder/tunedeck/internal/querycache"
	"github.com/desertthunder/tunedeck/internal/repositories"
	"github.com/desertthunder/tunedeck/internal/services"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/desertthunder/tunedeck/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The backend stack (credential store, client, cache, queries) is built on first use so
// commands like `setup config` work without a reachable storage backend.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	storage   credentials.Storage
	transport http.RoundTripper
	db        *sql.DB

	store   *credentials.Store
	client  *services.Client
	cache   *querycache.Cache
	queries *library.Queries
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	// Storage overrides the configured credential storage backend.
	Storage credentials.Storage
	// Transport is the base round tripper of the backend client.
	Transport http.RoundTripper
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		storage:    opts.Storage,
		transport:  opts.Transport,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, loginCommand, logoutCommand, statusCommand,
		playlistsCommand, tracksCommand, albumsCommand, artistsCommand,
		notificationsCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, used when the TUI redirects logs to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases the database handle if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// database opens and migrates the sqlite database once.
func (r *Runner) database(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) credentialStorage(ctx context.Context) (credentials.Storage, error) {
	if r.storage != nil {
		return r.storage, nil
	}

	switch r.config.Storage.Backend {
	case shared.StorageMemory:
		return credentials.NewMemoryStorage(), nil
	case shared.StorageSQLite:
		db, err := r.database(ctx)
		if err != nil {
			return nil, err
		}
		return repositories.NewKVRepository(db), nil
	case shared.StorageFile, "":
		return credentials.NewFileStorage(shared.ExpandHome(r.config.Storage.Dir))
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, r.config.Storage.Backend)
}

// setup builds the credential store, backend client, query cache and queries.
func (r *Runner) setup(ctx context.Context) error {
	if r.queries != nil {
		return nil
	}

	if err := r.config.Validate(); err != nil {
		return err
	}

	storage, err := r.credentialStorage(ctx)
	if err != nil {
		return err
	}

	store, err := credentials.NewStore(ctx, storage, r.config.Storage.Key, r.logger)
	if err != nil {
		return err
	}

	opts := []services.ClientOption{
		services.WithLogger(r.logger),
		services.WithTimeout(r.config.Server.RequestTimeout()),
	}
	if r.transport != nil {
		opts = append(opts, services.WithTransport(r.transport))
	}

	client, err := services.NewClient(r.config.Server.BaseURL, store, opts...)
	if err != nil {
		return err
	}

	r.store = store
	r.client = client
	r.cache = querycache.New(querycache.WithStaleTime(r.config.Cache.StaleTime()), querycache.WithLogger(r.logger))
	r.queries = library.New(client, r.cache, store, r.logger)
	return nil
}

// connect opens the live notification channel and starts listening on it.
// The returned channel receives the result of Listen.
func (r *Runner) connect(ctx context.Context) (*notify.Channel, <-chan error, error) {
	ch, err := notify.New(r.config.Server.BaseURL, r.cache, notify.WithLogger(r.logger))
	if err != nil {
		return nil, nil, err
	}

	if err := ch.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ch.Listen(ctx)
	}()
	return ch, done, nil
}

// engine returns a task engine; ch may be nil when nobody waits on tasks.
func (r *Runner) engine(ch *notify.Channel) *tasks.Engine {
	if ch == nil {
		return tasks.NewEngine(r.queries, nil, r.logger)
	}
	return tasks.NewEngine(r.queries, ch, r.logger)
}

// describeError distinguishes backend failures from failed requests for the user.
func (r *Runner) describeError(err error) error {
	if err == nil {
		return nil
	}

	he, ok := services.AsHTTPError(err)
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		return fmt.Errorf("%w (run `tunedeck login`)", err)
	case ok && he.IsServerError():
		return fmt.Errorf("server error: %w", err)
	case ok:
		return fmt.Errorf("request failed: %w", err)
	}
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

func (r *Runner) writeBytes(b []byte) error {
	if _, err := r.output.Write(b); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
