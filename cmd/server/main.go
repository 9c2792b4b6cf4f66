package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maktheus/AgentBenchMark/api"
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

	loadConfig = config.Load
	openStore  = store.Open
	newServer  = api.NewServer
	runServer  = (*api.Server).Run
)

func main() {
	osExit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(stderrWriter)

	var addr string
	var configPath string
	fs.StringVar(&addr, "addr", "", "listen address (defaults to config)")
	fs.StringVar(&configPath, "config", config.DefaultPath, "path to config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}
	defer func() { _ = st.Close() }()

	datasetsDir := strings.TrimSpace(cfg.Benchmark.DatasetsDir)
	if datasetsDir == "" {
		datasetsDir = defaultDatasetsDir
	}
	loader := dataset.NewDirLoader(datasetsDir)

	orch := orchestrator.New(st, loader, agent.CredentialsFromConfig(cfg))
	defer orch.Wait()

	svc := service.New(st, loader, orch, cfg.Benchmark)

	srv, err := newServer(cfg, svc)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	if strings.TrimSpace(addr) == "" {
		addr = cfg.Server.Addr
	}
	if err := runServer(srv, addr); err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	return 0
}
