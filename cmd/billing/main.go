package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/app"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/logger"
	"github.com/qs3c/cake_billing_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", false, "List due companies without charging")
	poll    = flag.Bool("poll", false, "Also poll stale processing payments")
	timeout = flag.Duration("timeout", 30*time.Minute, "Abort the sweep after this long")
)

// 单次执行周期扣款，供外部调度（如 k8s CronJob）使用
func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	a, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}

	summary, err := run(a)
	a.Close()
	if err != nil {
		log.WithError(err).Error("sweep failed")
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}

func run(a *app.App) (*dto.SweepSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := a.Billing.Sweep(ctx, service.SweepOptions{DryRun: *dryRun})
	if err != nil {
		return nil, err
	}

	if *poll && !*dryRun {
		updated, err := a.Payments.PollStale(ctx)
		if err != nil {
			a.Log.WithError(err).Warn("poll failed")
		} else {
			a.Log.WithField("updated", updated).Info("stale payments polled")
		}
	}
	return summary, nil
}
