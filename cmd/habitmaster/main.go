package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/julianstephens/habitmaster/internal/blobstore"
	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/cli/backups"
	"github.com/julianstephens/habitmaster/internal/cli/habits"
	"github.com/julianstephens/habitmaster/internal/cli/profiles"
	"github.com/julianstephens/habitmaster/internal/cli/system"
	"github.com/julianstephens/habitmaster/internal/config"
	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/metrics"
	"github.com/julianstephens/habitmaster/internal/service"
	"github.com/julianstephens/habitmaster/internal/storage"
)

var CLI struct {
	Version   kong.VersionFlag
	DB        string `help:"SQLite file path, PostgreSQL connection string, or 'keyring'. PostgreSQL passwords must NOT be embedded; use the OS keyring or .pgpass instead." default:"~/.config/habitmaster/habitmaster.db" env:"HABITMASTER_DB"`
	Timezone  string `help:"IANA timezone whose midnight starts a new day." default:"Local" env:"HABITMASTER_TIMEZONE"`
	Debug     bool   `help:"Log at debug level and mirror logs to stderr." env:"HABITMASTER_DEBUG"`
	LogLevel  string `help:"Log level (debug, info, warn, error); overrides the --debug default." env:"HABITMASTER_LOG_LEVEL"`
	LogFormat string `help:"Log file format." enum:"text,json" default:"text" env:"HABITMASTER_LOG_FORMAT"`
	BlobDir   string `help:"Directory for profile photos (default: next to the database)." env:"HABITMASTER_BLOB_DIR"`
	Profile   string `short:"p" help:"Profile id or name to act on." env:"HABITMASTER_PROFILE"`

	Init     system.InitCmd      `cmd:"" help:"Initialize habitmaster storage."`
	Migrate  system.MigrateCmd   `cmd:"" help:"Run database migrations."`
	Profiles profiles.ProfileCmd `cmd:"" name:"profile" help:"Manage profiles."`
	Habit    habits.HabitCmd     `cmd:"" help:"Manage habits and daily completions."`
	Stats    habits.StatsCmd     `cmd:"" help:"Show statistics for the selected profile."`
	Backup   backups.BackupCmd   `cmd:"" help:"Manage backups."`
	Reset    system.ResetCmd     `cmd:"" help:"Delete all profiles, habits and statistics."`
	Keyring  system.KeyringCmd   `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Watch    system.WatchCmd     `cmd:"" help:"Follow live changes to the selected profile."`
	Doctor   system.DoctorCmd    `cmd:"" help:"Run health checks and diagnostics."`
}

func main() {
	dataDir := storage.DefaultDataDir()
	if err := config.LoadDotEnv(".env", filepath.Join(dataDir, ".env")); err != nil {
		errors.Fatal(err)
	}

	cfgPath := os.Getenv(constants.EnvConfig)
	if cfgPath == "" {
		cfgPath = storage.ExpandHome(constants.DefaultConfigFile)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		errors.Fatal(err)
	}

	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with daily completions, streaks and statistics"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Resolvers(cfg.Resolver()),
		kong.Vars{"version": constants.Version},
	)

	if err := logger.Init(logger.Config{
		Debug:     CLI.Debug,
		ConfigDir: dataDir,
		Level:     CLI.LogLevel,
		Format:    CLI.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer func() { _ = logger.Close() }()

	loc, err := config.Location(CLI.Timezone)
	if err != nil {
		errors.Fatal(err)
	}

	command := ctx.Command()
	app := &cli.Context{
		Profile: CLI.Profile,
		Out:     os.Stdout,
		In:      os.Stdin,
	}

	// The keyring commands manage the credentials themselves and never open a store
	if !strings.HasPrefix(command, "keyring") {
		opts := []storage.Option{storage.WithLocation(loc)}
		if CLI.BlobDir != "" {
			opts = append(opts, storage.WithBlobStore(blobstore.NewFS(storage.ExpandHome(CLI.BlobDir))))
		}
		store, err := cli.OpenStore(CLI.DB, opts...)
		if err != nil {
			errors.Fatal(err)
		}
		// Init creates the schema itself
		if !strings.HasPrefix(command, "init") {
			if err := store.Load(); err != nil {
				errors.Fatal(err)
			}
		}
		app.Store = store
	}
	app.Service = service.New(app.Store, service.WithLocation(loc))

	metrics.Register(prometheus.DefaultRegisterer)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx.BindTo(runCtx, (*context.Context)(nil))
	err = ctx.Run(app)
	stop()

	if app.Store != nil {
		if closeErr := app.Store.Close(); closeErr != nil {
			logger.Warn("Failed to close store", "error", closeErr)
		}
	}

	if err != nil {
		if errors.IsExpected(err) {
			fmt.Println(errors.UserMessage(err))
			return
		}
		errors.Fatalf("%s", errors.UserMessage(err))
	}
}
