package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/config"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
	"github.com/maktheus/AgentBenchMark/internal/orchestrator"
	"github.com/maktheus/AgentBenchMark/internal/service"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

const defaultDatasetsDir = "datasets"

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

type cliState struct {
	configPath string
	jsonOut    bool
}

// env bundles everything a subcommand needs.
type env struct {
	cfg    *config.Config
	store  store.Store
	loader dataset.Loader
	orch   *orchestrator.Orchestrator
	svc    *service.Service
}

func (e *env) close() {
	if e == nil || e.store == nil {
		return
	}
	_ = e.store.Close()
}

var openEnv = func(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		// A missing config file is fine for local use; env vars still
		// provide the credentials.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	datasetsDir := strings.TrimSpace(cfg.Benchmark.DatasetsDir)
	if datasetsDir == "" {
		datasetsDir = defaultDatasetsDir
	}
	loader := dataset.NewDirLoader(datasetsDir)

	orch := orchestrator.New(st, loader, agent.CredentialsFromConfig(cfg))
	svc := service.New(st, loader, orch, cfg.Benchmark)

	return &env{cfg: cfg, store: st, loader: loader, orch: orch, svc: svc}, nil
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "bench",
		Short:         "Run and inspect AI agent benchmarks",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")
	root.PersistentFlags().BoolVar(&st.jsonOut, "json", false, "emit JSON instead of tables")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newListCmd(st))
	root.AddCommand(newStatusCmd(st))
	root.AddCommand(newResultsCmd(st))
	root.AddCommand(newAnalyticsCmd(st))
	root.AddCommand(newCancelCmd(st))
	return root
}
