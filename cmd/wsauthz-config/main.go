package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/wsauthz"
	"github.com/oarkflow/wsauthz/logger"
	"github.com/oarkflow/wsauthz/stores"
)

// settings are read from WSAUTHZ_* environment variables.
type settings struct {
	Backend     string        `envconfig:"BACKEND" default:"memory"`
	SQLitePath  string        `envconfig:"SQLITE_PATH" default:"wsauthz.db"`
	RedisAddr   string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB     int           `envconfig:"REDIS_DB" default:"0"`
	Logger      string        `envconfig:"LOGGER" default:"phuslu"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	MaxSessions int64         `envconfig:"MAX_SESSIONS" default:"100000"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches a command and returns the process exit code. Handlers
// release their backends before returning.
func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}
	switch args[0] {
	case "convert":
		return handleConvert(args[1:])
	case "validate":
		return handleValidate(args[1:])
	case "stats":
		return handleStats(args[1:])
	case "matrix":
		return handleMatrix(args[1:])
	case "check":
		return handleCheck(args[1:])
	case "apply":
		return handleApply(args[1:])
	}
	fmt.Printf("Unknown command: %s\n", args[0])
	printUsage()
	return 1
}

func printUsage() {
	fmt.Println("wsauthz-config - Configuration tool for workspace authorization")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wsauthz-config convert <input> <output>                  - Convert between YAML and JSON")
	fmt.Println("  wsauthz-config validate <file>                           - Validate configuration")
	fmt.Println("  wsauthz-config stats <file>                              - Show configuration statistics")
	fmt.Println("  wsauthz-config matrix <file>                             - Print the role/permission matrix")
	fmt.Println("  wsauthz-config check <file> <principal> <workspace> <key> - Explain one decision")
	fmt.Println("  wsauthz-config apply <file>                              - Seed the configured backend")
	fmt.Println()
	fmt.Println("Environment: WSAUTHZ_BACKEND (memory|sqlite|redis), WSAUTHZ_SQLITE_PATH,")
	fmt.Println("  WSAUTHZ_REDIS_ADDR, WSAUTHZ_REDIS_DB, WSAUTHZ_LOGGER (phuslu|slog|zap|none)")
}

// fail prints the message and returns exit code 1.
func fail(format string, args ...any) int {
	fmt.Printf(format+"\n", args...)
	return 1
}

func handleConvert(args []string) int {
	if len(args) < 2 {
		return fail("Usage: wsauthz-config convert <input> <output>")
	}
	inputFile, outputFile := args[0], args[1]
	cfg, err := loadConfig(inputFile)
	if err != nil {
		return fail("Error loading config: %v", err)
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fail("unsupported file format: %s", outputFile)
	}
	if err != nil {
		return fail("Error encoding config: %v", err)
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fail("Error saving config: %v", err)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
	return 0
}

// bootstrapFile loads a config file into an in-memory runtime.
func bootstrapFile(filename string) (*wsauthz.Config, *wsauthz.Runtime, error) {
	cfg, err := loadConfig(filename)
	if err != nil {
		return nil, nil, err
	}
	rt, err := wsauthz.Bootstrap(context.Background(), cfg, wsauthz.Backends{})
	if err != nil {
		return nil, nil, err
	}
	return cfg, rt, nil
}

func handleValidate(args []string) int {
	if len(args) < 1 {
		return fail("Usage: wsauthz-config validate <file>")
	}
	cfg, rt, err := bootstrapFile(args[0])
	if err != nil {
		return fail("Invalid configuration: %v", err)
	}
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version:     %d\n", cfg.Version)
	fmt.Printf("  Permissions: %d\n", rt.Catalog.Len())
	fmt.Printf("  Roles:       %d\n", len(rt.Roles.List()))
	fmt.Printf("  Workspaces:  %d\n", len(rt.Workspaces.List()))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
	fmt.Printf("  Guards:      %d\n", len(rt.Guards.Guards()))
	return 0
}

func handleStats(args []string) int {
	if len(args) < 1 {
		return fail("Usage: wsauthz-config stats <file>")
	}
	filename := args[0]
	cfg, rt, err := bootstrapFile(filename)
	if err != nil {
		return fail("Error loading config: %v", err)
	}

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat, _ := os.Stat(filename); stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Catalog:")
	byResource := rt.Catalog.ByResource()
	for _, res := range rt.Catalog.Resources() {
		fmt.Printf("  %-10s %d\n", res, len(byResource[res]))
	}
	fmt.Println()

	fmt.Println("Roles:")
	for _, r := range rt.Roles.List() {
		fmt.Printf("  %-12s scope=%-9s rank=%d permissions=%d\n", r.ID, r.Scope, r.Rank, r.Permissions().Len())
	}
	fmt.Println()

	fmt.Println("Workspaces:")
	for _, ws := range rt.Workspaces.List() {
		fmt.Printf("  %-16s active=%-5t members=%d\n", ws.ID, ws.Active, len(rt.Members.Members(ws.ID)))
	}
	return 0
}

func handleMatrix(args []string) int {
	if len(args) < 1 {
		return fail("Usage: wsauthz-config matrix <file>")
	}
	_, rt, err := bootstrapFile(args[0])
	if err != nil {
		return fail("Error loading config: %v", err)
	}
	roles := rt.Roles.List()
	fmt.Printf("%-22s %-9s", "permission", "scope")
	for _, r := range roles {
		fmt.Printf(" %-10s", r.ID)
	}
	fmt.Println()
	for _, p := range rt.Catalog.List() {
		fmt.Printf("%-22s %-9s", p.Key(), p.Scope)
		for _, r := range roles {
			mark := "-"
			if r.Permissions().Has(p.Key()) {
				mark = "x"
			}
			fmt.Printf(" %-10s", mark)
		}
		fmt.Println()
	}
	return 0
}

// handleCheck exits 2 on DENY.
func handleCheck(args []string) int {
	if len(args) < 4 {
		return fail("Usage: wsauthz-config check <file> <principal> <workspace> <key>")
	}
	cfg, err := loadConfig(args[0])
	if err != nil {
		return fail("Error loading config: %v", err)
	}
	s, err := loadSettings()
	if err != nil {
		return fail("Error reading environment: %v", err)
	}
	ctx := context.Background()
	backends, closeFn, err := openBackends(ctx, s)
	if err != nil {
		return fail("Error opening backend: %v", err)
	}
	defer closeFn()
	rt, err := wsauthz.Bootstrap(ctx, cfg, backends)
	if err != nil {
		return fail("Error bootstrapping: %v", err)
	}
	wctx := wsauthz.WorkspaceContext{PrincipalID: args[1], WorkspaceID: args[2], SwitchedAt: time.Now()}
	d := rt.Engine.Explain(wctx, wsauthz.PermissionKey(args[3]), nil)
	fmt.Printf("%s %s in %s: %s\n", wctx.PrincipalID, d.Permission, wctx.WorkspaceID, d)
	for _, line := range d.Trace {
		fmt.Printf("  %s\n", line)
	}
	if !d.Allowed {
		return 2
	}
	return 0
}

func handleApply(args []string) int {
	if len(args) < 1 {
		return fail("Usage: wsauthz-config apply <file>")
	}
	cfg, err := loadConfig(args[0])
	if err != nil {
		return fail("Error loading config: %v", err)
	}
	s, err := loadSettings()
	if err != nil {
		return fail("Error reading environment: %v", err)
	}
	ctx := context.Background()
	backends, closeFn, err := openBackends(ctx, s)
	if err != nil {
		return fail("Error opening backend: %v", err)
	}
	defer closeFn()
	rt, err := wsauthz.Bootstrap(ctx, cfg, backends)
	if err != nil {
		return fail("Error applying config: %v", err)
	}
	fmt.Printf("Configuration applied to %s backend\n", s.Backend)
	fmt.Printf("  Workspaces: %d\n", len(rt.Workspaces.List()))
	total := 0
	for _, ws := range rt.Workspaces.List() {
		total += len(rt.Members.Members(ws.ID))
	}
	fmt.Printf("  Memberships: %d\n", total)
	return 0
}

func loadConfig(filename string) (*wsauthz.Config, error) {
	return wsauthz.NewConfigLoader().LoadFile(filename)
}

func loadSettings() (settings, error) {
	var s settings
	err := envconfig.Process("WSAUTHZ", &s)
	return s, err
}

func newLogger(kind string) (logger.Logger, error) {
	switch kind {
	case "slog":
		return logger.NewSLogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil))), nil
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("zap logger: %w", err)
		}
		return logger.NewZapLogger(z), nil
	case "none":
		return logger.NewNullLogger(), nil
	}
	return logger.NewPhusluLogger(), nil
}

// openBackends wires the stores selected by s. The returned func releases
// connections; on error everything opened so far is already released.
func openBackends(ctx context.Context, s settings) (wsauthz.Backends, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	abort := func(err error) (wsauthz.Backends, func(), error) {
		closeAll()
		return wsauthz.Backends{}, nil, err
	}

	log, err := newLogger(s.Logger)
	if err != nil {
		return abort(err)
	}
	b := wsauthz.Backends{Logger: log}
	sessions, err := stores.NewRistrettoSessionStore(s.MaxSessions, s.SessionTTL)
	if err != nil {
		return abort(err)
	}
	closers = append(closers, sessions.Close)
	b.Sessions = sessions

	switch s.Backend {
	case "memory":
		b.Memberships = stores.NewMemoryMembershipStore()
		b.Workspaces = stores.NewMemoryWorkspaceStore()
		b.Audit = stores.NewMemoryAuditStore()
	case "sqlite":
		sqlDB, err := sql.Open("sqlite", s.SQLitePath)
		if err != nil {
			return abort(fmt.Errorf("open sqlite: %w", err))
		}
		closers = append(closers, func() { _ = sqlDB.Close() })
		db := squealx.NewDb(sqlDB, "sqlite", "wsauthz")
		if err := stores.Migrate(ctx, db); err != nil {
			return abort(err)
		}
		b.Memberships = stores.NewSQLMembershipStore(db)
		b.Workspaces = stores.NewSQLWorkspaceStore(db)
		b.Audit = stores.NewSQLAuditStore(db)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr, DB: s.RedisDB})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return abort(fmt.Errorf("connect redis: %w", err))
		}
		b.Memberships = stores.NewRedisMembershipStore(client)
		b.Sessions = stores.NewRedisSessionStore(client, s.SessionTTL)
		b.Workspaces = stores.NewMemoryWorkspaceStore()
		b.Audit = stores.NewMemoryAuditStore()
	default:
		return abort(fmt.Errorf("unknown backend: %s", s.Backend))
	}
	return b, closeAll, nil
}
