package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"gc_bot/internal/config"
	"gc_bot/internal/fault"
	"gc_bot/internal/modules"
	"gc_bot/internal/runner"
	"gc_bot/pkg/logger"
)

// Коды выхода: 0 — цикл прошёл или прерван штатно (нет данных, отказ ордера),
// 1 — неклассифицированная ошибка, 2 — фатальная (блокировка, битое состояние).
func main() {
	fs := pflag.NewFlagSet("once", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("", fs)
	if err != nil {
		logger.Fatal("config: %+v", err)
	}

	var r *runner.Runner
	app := fx.New(append(modules.Core(cfg), fx.Populate(&r))...)
	if err := app.Err(); err != nil {
		logger.Fatal("build app: %+v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Fatal("start: %+v", err)
	}

	sum, runErr := r.RunCycle(context.Background())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	_ = app.Stop(stopCtx)

	out, err := sonic.ConfigStd.MarshalIndent(sum, "", "  ")
	if err != nil {
		logger.Fatal("encode summary: %v", err)
	}
	fmt.Println(string(out))

	code := exitCode(runErr)
	logger.Info("cycle finished: stage=%s exit=%d", sum.Stage, code)
	os.Exit(code)
}

func exitCode(err error) int {
	switch {
	case err == nil, fault.Recoverable(err):
		return 0
	case fault.IsFatal(err):
		return 2
	}
	return 1
}
