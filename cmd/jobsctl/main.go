package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/backoffice/cmd/jobsctl/cli"
	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	asOf := flag.String("as-of", "", "sweep date (YYYY-MM-DD), defaults to today")
	batch := flag.Int("batch", 0, "sweep batch size")
	retention := flag.Int("retention-hours", 0, "idempotency key retention in hours")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: jobsctl [flags] stats|scheduled|trigger <task>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	c := cli.NewJobsCLI(cfg.AsynqRedisOpt())
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
	}()

	switch flag.Arg(0) {
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := c.ListScheduled(20)
		if err != nil {
			logger.Error("list scheduled", slog.Any("error", err))
			os.Exit(1)
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	case "trigger":
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(2)
		}
		var payload any
		switch name := flag.Arg(1); name {
		case jobs.TaskIdempotencyPurge:
			payload = jobs.PurgePayload{RetentionHours: *retention}
		case jobs.TaskSalesMarkOverdue, jobs.TaskQuotationsExpire:
			payload = jobs.SweepPayload{AsOf: *asOf, BatchSize: *batch}
		}
		info, err := c.Trigger(context.Background(), flag.Arg(1), payload)
		if err != nil {
			logger.Error("trigger job", slog.String("task", flag.Arg(1)), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("job enqueued", slog.String("id", info.ID), slog.String("type", info.Type))
	default:
		flag.Usage()
		os.Exit(2)
	}
}
