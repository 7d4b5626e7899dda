// Command rickmorty-server serves the dashboard API.
//
// Settings come from an optional YAML file, then the environment (a .env
// file in the working directory is loaded first), then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/rickmorty-client/internal/config"
	"github.com/Sternrassler/rickmorty-client/internal/server"
	"github.com/Sternrassler/rickmorty-client/pkg/logging"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type options struct {
	Config      string `short:"c" long:"config" env:"RICKMORTY_CONFIG" description:"YAML settings file"`
	Addr        string `long:"addr" env:"RICKMORTY_ADDR" description:"Listen address"`
	Transport   string `short:"t" long:"transport" env:"RICKMORTY_TRANSPORT" default:"rest" choice:"rest" choice:"graphql" description:"Upstream transport"`
	RESTURL     string `long:"rest-url" env:"RICKMORTY_REST_URL" description:"REST base URL"`
	GraphQLURL  string `long:"graphql-url" env:"RICKMORTY_GRAPHQL_URL" description:"GraphQL endpoint"`
	RedisURL    string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for the response cache (optional)"`
	OutputDir   string `long:"output-dir" env:"RICKMORTY_OUTPUT_DIR" description:"Directory for exported files"`
	Concurrency int    `long:"concurrency" env:"RICKMORTY_CONCURRENCY" description:"Pages fetched in parallel"`
	LogLevel    string `long:"log-level" env:"LOG_LEVEL" description:"debug, info, warn, error or disabled"`
	LogJSON     bool   `long:"log-json" env:"LOG_JSON" description:"Log JSON instead of console output"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Error().Err(err).Msg("Server failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "rickmorty-server"
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return nil
		}
		return err
	}

	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	logCfg := settings.LoggingConfig()
	if opts.LogJSON {
		logCfg.Pretty = false
	}
	logging.Setup(logCfg)

	srv, cleanup, err := newServer(ctx, settings, opts.Transport)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.ListenAndServe(ctx, settings.Server.Addr)
}

func loadSettings(opts options) (*config.Settings, error) {
	settings, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, err
	}
	err = settings.Apply(config.Overrides{
		RESTBaseURL:    opts.RESTURL,
		GraphQLURL:     opts.GraphQLURL,
		RedisURL:       opts.RedisURL,
		OutputDir:      opts.OutputDir,
		LogLevel:       opts.LogLevel,
		Addr:           opts.Addr,
		MaxConcurrency: opts.Concurrency,
		MaxRetries:     config.NoRetryOverride,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// newServer wires Redis, the upstream client and the HTTP server. cleanup
// releases both clients.
func newServer(ctx context.Context, settings *config.Settings, transport string) (*server.Server, func(), error) {
	t, err := rickmorty.ParseTransport(transport)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := settings.OpenRedis()
	if err != nil {
		return nil, nil, err
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("addr", rdb.Options().Addr).Msg("Connected to Redis")
	}

	c, err := rickmorty.New(t, settings.ClientConfig(rdb))
	if err != nil {
		closeRedis(rdb)
		return nil, nil, err
	}

	var opts []server.Option
	if rdb != nil {
		opts = append(opts, server.WithRedis(rdb))
	}
	cleanup := func() {
		c.Close()
		closeRedis(rdb)
	}
	return server.New(c, *settings, opts...), cleanup, nil
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		rdb.Close()
	}
}
