package main

import (
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"gc_bot/internal/config"
	"gc_bot/internal/modules"
	"gc_bot/internal/modules/health"
	runnermod "gc_bot/internal/modules/runner"
	"gc_bot/pkg/logger"
)

func main() {
	fs := pflag.NewFlagSet("bot", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("", fs)
	if err != nil {
		logger.Fatal("config: %+v", err)
	}

	opts := append(modules.Core(cfg),
		health.Module(),
		runnermod.SchedulerModule(),
	)
	fx.New(opts...).Run()
}
