package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"agent-relay/handler"
	"agent-relay/internal/integrations/paramstore"
	"agent-relay/internal/repository"
	"agent-relay/internal/usecase"
)

const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storeDynamoDB = "dynamodb"
)

type storeConfig struct {
	kind        string
	dbPath      string
	table       string
	paramPrefix string
	logName     string
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	storeCfg := storeConfig{
		kind:        envString("RELAY_STORE", storeMemory),
		dbPath:      envString("RELAY_DB_PATH", repository.DefaultSQLitePath),
		table:       os.Getenv("RELAY_TABLE"),
		paramPrefix: os.Getenv("RELAY_PARAM_PREFIX"),
		logName:     envString("RELAY_LOG_NAME", repository.DefaultLogName),
	}
	logLevel := envString("RELAY_LOG_LEVEL", "info")
	logFile := os.Getenv("RELAY_LOG_FILE")
	maxLineBytes := envInt("RELAY_MAX_LINE_BYTES", handler.DefaultMaxLineBytes)

	// ---- Logging (never stdout: it carries the protocol) ----
	logger, closeLog, err := newLogger(logLevel, logFile)
	if err != nil {
		slog.Error("failed to open log file", "path", logFile, "err", err)
		os.Exit(1)
	}
	logger = logger.With("relay_id", uuid.NewString())
	slog.SetDefault(logger)

	if err := run(context.Background(), storeCfg, maxLineBytes, os.Stdin, os.Stdout); err != nil {
		slog.Error("relay stopped", "err", err)
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func run(ctx context.Context, cfg storeConfig, maxLineBytes int, in io.Reader, out io.Writer) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.kind, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}()

	relay, err := usecase.NewRelayService(store)
	if err != nil {
		return err
	}
	h, err := handler.NewHandler(relay, slog.Default(), maxLineBytes)
	if err != nil {
		return err
	}

	slog.Info("starting relay", "store", cfg.kind)
	return h.Serve(ctx, in, out)
}

func openStore(ctx context.Context, cfg storeConfig) (repository.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.kind)) {
	case storeMemory, "":
		return repository.NewMemoryStore(), nil

	case storeSQLite:
		s, err := repository.NewSQLiteStore(ctx, cfg.dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil

	case storeDynamoDB:
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		var getter paramstore.Getter
		if strings.TrimSpace(cfg.table) == "" {
			ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, err
			}
			getter = ssmClient
		}
		table, err := paramstore.ResolveTableName(ctx, getter, cfg.table, cfg.paramPrefix)
		if err != nil {
			return nil, err
		}
		c, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), table, cfg.logName)
		if err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, errors.New("unknown store kind " + strconv.Quote(cfg.kind))
	}
}

func newLogger(level, path string) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, opts)), f.Close, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
