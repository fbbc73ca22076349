// Command onboard creates employees and business subjects from a JSON or
// YAML document, rolls back journaled onboardings and issues login tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/fortressi/onboard/config"
	"github.com/fortressi/onboard/credential"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/obs"
	"github.com/fortressi/onboard/onboarding"
	"github.com/fortressi/onboard/saga"
	"github.com/fortressi/onboard/store"
	"github.com/fortressi/onboard/store/memstore"
	"github.com/fortressi/onboard/store/pgstore"
)

const appName = "onboard"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one subcommand and returns the process exit code. Deferred
// cleanup runs before the caller exits.
func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 2
	}
	name := args[0]

	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := cmd.String("config", "", "YAML configuration file")
	input := cmd.String("input", "", "JSON or YAML document with one input or a list of inputs")
	sagaID := cmd.String("saga-id", "", "Saga to roll back")
	username := cmd.String("username", "", "Username to log in with")
	metricsFile := cmd.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, appName)

	switch name {
	case "employees", "subjects", "login", "graph":
	case "rollback":
		if *sagaID == "" {
			logger.Error("-saga-id is required for rollback")
			return 2
		}
		if cfg.Journal.Dir == "" {
			logger.Error("rollback needs journal.dir: the in-memory journal does not outlive the run that wrote it")
			return 2
		}
	default:
		printUsage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		return 1
	}
	defer a.close()

	switch name {
	case "employees":
		err = a.employees(ctx, *input)
	case "subjects":
		err = a.subjects(ctx, *input)
	case "rollback":
		err = a.orch.Rollback(ctx, *sagaID)
	case "login":
		err = a.login(ctx, *username, os.Getenv(config.EnvPrefix+"_PASSWORD"))
	case "graph":
		err = a.graph(cmd.Arg(0))
	}

	if *metricsFile != "" {
		if werr := prometheus.WriteToTextfile(*metricsFile, a.registry); werr != nil {
			logger.WithError(werr).Warn("failed to write metrics")
		}
	}
	if err != nil {
		logger.WithError(err).WithField("kind", onboarding.KindOf(err)).Errorf("%s failed", name)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  onboard employees -input FILE   create employees")
	fmt.Println("  onboard subjects -input FILE    create business subjects")
	fmt.Println("  onboard rollback -saga-id ID    undo a journaled onboarding")
	fmt.Println("  onboard login -username NAME    issue a token; password from ONBOARD_PASSWORD")
	fmt.Println("  onboard graph [employee|subject] print the saga steps as DOT")
	fmt.Println("\nEvery command accepts -config FILE and -metrics-file FILE.")
}

type app struct {
	orch     *onboarding.Orchestrator
	registry *prometheus.Registry
	closers  []func() error
	logger   logrus.FieldLogger
}

func newApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry(), logger: logger}

	key, err := credential.LoadOrCreateKey(cfg.Keys.Path, []byte(cfg.Keys.Passphrase), cfg.Keys.Bits)
	if err != nil {
		return nil, err
	}
	creds, err := credential.NewManager(key,
		credential.WithTTL(cfg.Tokens.TTL),
		credential.WithIssuer(cfg.Tokens.Issuer))
	if err != nil {
		return nil, err
	}

	st, err := a.openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var journal saga.Store[*onboarding.State]
	if cfg.Journal.Dir != "" {
		fs, err := saga.NewFileStore[*onboarding.State](cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		journal = fs
	}

	metrics, err := obs.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	a.orch, err = onboarding.New(st, creds,
		onboarding.WithLogger(logger),
		onboarding.WithMetrics(metrics),
		onboarding.WithJournal(journal),
		onboarding.WithTransactions(cfg.Store.Transactional),
		onboarding.WithDefaultCountryCode(cfg.Phone.DefaultCountryCode),
		onboarding.WithValidator(model.NewValidator(cfg.Employee.MinAge, cfg.Employee.MaxAge, nil)))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := pgstore.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		a.logger.Warn("using the in-memory store; records are lost on exit")
		mem, err := memstore.New()
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.WithError(err).Warn("close failed")
		}
	}
}

func (a *app) employees(ctx context.Context, path string) error {
	var in []model.EmployeeInput
	if err := readInput(path, &in); err != nil {
		return err
	}
	return a.report(a.orch.CreateEmployees(ctx, in))
}

func (a *app) subjects(ctx context.Context, path string) error {
	var in []model.SubjectInput
	if err := readInput(path, &in); err != nil {
		return err
	}
	return a.report(a.orch.CreateSubjects(ctx, in))
}

type outcome struct {
	Index  int               `json:"index"`
	Bundle onboarding.Bundle `json:"bundle"`
	Kind   string            `json:"kind,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// report prints one JSON line per input and fails when any input failed.
func (a *app) report(results []onboarding.Result) error {
	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, r := range results {
		out := outcome{Index: r.Index, Bundle: r.Bundle}
		if r.Err != nil {
			failed++
			out.Kind = onboarding.KindOf(r.Err).String()
			out.Error = r.Err.Error()
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d onboardings failed", failed, len(results))
	}
	return nil
}

func (a *app) login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("-username and ONBOARD_PASSWORD are required")
	}
	token, err := a.orch.Login(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (a *app) graph(name string) error {
	if name == "" {
		name = string(onboarding.EmployeeSaga)
	}
	out, err := a.orch.Graph(saga.SagaName(name))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// readInput decodes path into out. A single document is accepted where a
// list is expected.
func readInput[T any](path string, out *[]T) error {
	if path == "" {
		return errors.New("-input is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}
	if err := unmarshal(data, out); err == nil {
		return nil
	}
	var one T
	if err := unmarshal(data, &one); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	*out = []T{one}
	return nil
}
