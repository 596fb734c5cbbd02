package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fedsql/fedsql/internal/cache"
	"github.com/fedsql/fedsql/internal/engine"
	"github.com/fedsql/fedsql/internal/executor"
	chexec "github.com/fedsql/fedsql/internal/executor/clickhouse"
	pgexec "github.com/fedsql/fedsql/internal/executor/postgres"
	trinoexec "github.com/fedsql/fedsql/internal/executor/trino"
	"github.com/fedsql/fedsql/internal/metadata"
	"github.com/fedsql/fedsql/internal/planner"
	"github.com/fedsql/fedsql/internal/query"
	"github.com/fedsql/fedsql/pkg/config"
	"github.com/fedsql/fedsql/pkg/dbcapabilities"
	"github.com/fedsql/fedsql/pkg/logger"
)

var (
	metadataFile string
	queryFile    string
	roleID       string
	contextPairs []string
	freshness    string
	verbose      bool

	dsnPairs  []string
	redisAddr string
	trinoDSN  string
)

func main() {
	log := logger.New("fedsql")

	root := &cobra.Command{
		Use:   "fedsql",
		Short: "Metadata-driven federated query planner",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logger.LevelDebug)
			}
		},
	}
	root.PersistentFlags().StringVarP(&metadataFile, "metadata", "m", "metadata.yaml", "metadata configuration file")
	root.PersistentFlags().StringVarP(&queryFile, "query", "q", "", "query definition file")
	root.PersistentFlags().StringVarP(&roleID, "role", "r", "", "role id of the caller")
	root.PersistentFlags().StringArrayVarP(&contextPairs, "context", "c", nil, "context value as key=value (repeatable)")
	root.PersistentFlags().StringVar(&freshness, "freshness", "", "freshness tolerance: realtime, seconds, minutes or hours")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve a query to SQL without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log, false)
		},
	}

	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Resolve a query and run it against the chosen backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log, true)
		},
	}
	executeCmd.Flags().StringArrayVar(&dsnPairs, "dsn", nil, "backend DSN as database-id=dsn (repeatable)")
	executeCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for the cache tier")
	executeCmd.Flags().StringVar(&trinoDSN, "trino-dsn", "", "trino coordinator DSN")

	root.AddCommand(planCmd, executeCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(log *logger.Logger, execute bool) error {
	loader := &metadata.FileLoader{Path: metadataFile}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	reg, err := metadata.NewRegistry(cfg)
	if err != nil {
		return err
	}
	log.Debug("metadata loaded", map[string]string{
		"databases": fmt.Sprintf("%d", len(cfg.Databases)),
		"tables":    fmt.Sprintf("%d", len(cfg.Tables)),
	})

	def, err := loadQuery()
	if err != nil {
		return err
	}
	if freshness != "" {
		def.Freshness = metadata.SyncLag(freshness)
	}
	execCtx := &query.Context{RoleID: roleID, Values: map[string]interface{}{}}
	for _, pair := range contextPairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid context value %q, expected key=value", pair)
		}
		execCtx.Values[key] = value
	}

	opts := []engine.Option{engine.WithLogger(log)}
	if execute {
		router, err := buildRouter(reg)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithExecutor(router))
		if redisAddr != "" {
			opts = append(opts, engine.WithCache(cache.NewRedis(redisAddr, "", 0)))
		}
	}
	eng := engine.New(reg, opts...)

	var result *engine.Result
	if execute {
		result, err = eng.Execute(context.Background(), def, execCtx)
	} else {
		result, err = eng.Plan(context.Background(), def, execCtx)
	}
	printResult(result, verbose)
	return err
}

func loadQuery() (*query.Definition, error) {
	if queryFile == "" {
		return nil, fmt.Errorf("a query file is required (-q)")
	}
	data, err := os.ReadFile(queryFile)
	if err != nil {
		return nil, fmt.Errorf("error reading query file: %v", err)
	}
	var def query.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("error parsing query file %s: %v", queryFile, err)
	}
	return &def, nil
}

// buildRouter wires one executor per configured database plus the trino
// pseudo-target when a coordinator DSN is given.
func buildRouter(reg *metadata.Registry) (*executor.Router, error) {
	settings := config.New()
	for _, pair := range dsnPairs {
		id, dsn, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid dsn %q, expected database-id=dsn", pair)
		}
		settings.Set("dsn."+id, dsn)
	}

	router := executor.NewRouter()
	for id, db := range reg.Databases() {
		dsn := settings.Get("dsn." + id)
		if dsn == "" {
			continue
		}
		switch db.Engine {
		case dbcapabilities.PostgreSQL:
			exec, err := pgexec.Connect(context.Background(), dsn)
			if err != nil {
				return nil, err
			}
			router.Register(id, exec)
		case dbcapabilities.ClickHouse:
			exec, err := chexec.Connect(dsn, "", "", "")
			if err != nil {
				return nil, err
			}
			router.Register(id, exec)
		default:
			return nil, fmt.Errorf("database %q engine %q is not directly executable", id, db.Engine)
		}
	}
	if trinoDSN != "" {
		exec, err := trinoexec.Connect(trinoDSN)
		if err != nil {
			return nil, err
		}
		router.Register(planner.TrinoTarget, exec)
	}
	return router, nil
}

func printResult(result *engine.Result, verbose bool) {
	if result == nil {
		return
	}
	fmt.Printf("strategy: %s\n", result.Strategy)
	if result.TargetDatabase != "" {
		fmt.Printf("target:   %s (%s)\n", result.TargetDatabase, result.Dialect)
	}
	if result.SQL != "" {
		fmt.Printf("sql:      %s\n", result.SQL)
		fmt.Printf("params:   %v\n", result.Params)
	}
	if result.Data != nil {
		data, err := json.MarshalIndent(result.Data, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
	}
	if verbose {
		for _, entry := range result.DebugLog {
			fmt.Printf("  [%s] %s %v\n", entry.Phase, entry.Message, entry.Details)
		}
	}
}
