// Command inspector reads the MODR store directly: traffic stats, cleanup
// previews and offline purges, without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Miguel-Alzate/modr/internal/config"
	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/repository"
	"github.com/Miguel-Alzate/modr/internal/service"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

const usage = `usage: inspector <stats|preview|purge> [flags]

  stats    totals, error rate and slowest paths (--from, --to)
  preview  what a cleanup would delete (--days | --status | --method)
  purge    delete matching requests; requires --yes
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	from := fs.String("from", "", "lower bound (RFC3339, YYYY-MM-DD or unix seconds)")
	to := fs.String("to", "", "upper bound")
	days := fs.Int("days", 0, "older than this many days")
	status := fs.Int("status", 0, "status code")
	method := fs.String("method", "", "HTTP method")
	yes := fs.Bool("yes", false, "confirm purge")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	logger.Init("warn")

	db, err := repository.NewDB(cfg)
	if err != nil {
		fail(err)
	}
	dash := service.NewDashboardService(
		repository.NewRequestRepo(db),
		repository.NewStatsRepo(db),
		repository.NewCleanupRepo(db),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var out any
	switch cmd {
	case "stats":
		f, problems := statsFilter(*from, *to)
		if len(problems) > 0 {
			fail(fmt.Errorf("%v", problems))
		}
		out, err = dash.Stats(ctx, f)
	case "preview", "purge":
		crit := model.CleanupCriteria{OlderThanDays: *days, StatusCode: *status}
		if *method != "" {
			if crit.Method, err = validation.NormalizeMethod(*method); err != nil {
				fail(err)
			}
		}
		if cmd == "preview" {
			out, err = dash.PreviewCleanup(ctx, crit)
			break
		}
		if !*yes {
			fail(fmt.Errorf("purge deletes data; rerun with --yes"))
		}
		out, err = dash.Cleanup(ctx, crit)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func statsFilter(from, to string) (model.RequestFilter, []string) {
	f, t, problems := validation.ParseDateRange(from, to)
	return model.RequestFilter{From: f, To: t}, problems
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "inspector:", err)
	os.Exit(1)
}
