package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/repositories"
	"github.com/desertthunder/spotlink/internal/services"
	"github.com/desertthunder/spotlink/internal/shared"
	"github.com/desertthunder/spotlink/internal/state"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	palette    *Palette
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
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
		palette:    DefaultPalette(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, migrateCommand, deviceCommand, pollCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	config, err := shared.Load(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config

	name := config.Log.Level
	if flag := cmd.String("log-level"); flag != "" {
		name = flag
	}
	level, err := shared.ParseLogLevel(name)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, level)

	return ctx, nil
}

// openDatabase migrates and opens the configured database.
func (r *Runner) openDatabase(ctx context.Context) (*sql.DB, *repositories.DeviceRepository, error) {
	cfg := r.config.Database
	if err := shared.RunMigrations(cfg, r.logger); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := shared.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, repositories.NewDeviceRepository(db, repositories.DialectFor(cfg.Driver)), nil
}

// newProvider builds the Spotify client from configuration.
func (r *Runner) newProvider() (*services.SpotifyService, error) {
	cfg := r.config
	return services.NewSpotifyService(cfg.Credentials.Spotify.Map(), services.SpotifyOptions{
		AuthURL:    cfg.Provider.AuthURL,
		TokenURL:   cfg.Provider.TokenURL,
		APIURL:     cfg.Provider.APIURL,
		Timeout:    cfg.Provider.Timeout,
		ShowDialog: cfg.Credentials.Spotify.ShowDialog,
		Control:    cfg.Credentials.Spotify.Control,
	})
}

// newLinker wires a [linking.Linker] for store-only commands. It has no provider or state store.
func (r *Runner) newLinker(repo linking.CredentialStore) *linking.Linker {
	return linking.New(repo, nil, nil, r.logger, linking.Options{StateMode: shared.StateModeDevice})
}

// newStateStore builds the configured correlation store.
func (r *Runner) newStateStore() (state.Store, error) {
	if r.config.State.Mode == shared.StateModeDevice {
		r.logger.Warn("state mode 'device' sends the raw device id as OAuth state; use 'token' outside development")
	}
	return state.New(r.config.State)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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
