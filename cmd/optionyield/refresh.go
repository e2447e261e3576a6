package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/optionyield/internal/pipeline"
	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch every option chain and print the ranked yield table",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := refreshOptionsFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, slog.Default())
		if err != nil {
			return err
		}

		// Ctrl-C stops taking new instruments; the partial table is still printed.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cycle, err := a.service.Refresh(ctx, opts.concurrency, opts.codes)
		if err != nil {
			return err
		}
		final := followProgress(ctx, cycle, os.Stderr, time.Second)

		records := opts.apply(cycle.Results(opts.sort))
		printRecords(os.Stdout, records)
		fmt.Fprintf(os.Stdout, "\n%d rows from %d/%d instruments (%s)\n",
			len(records), final.CompletedCount, final.TotalCount, time.Since(cycle.StartedAt).Round(time.Millisecond))
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("sort", "", "ranking: yield_per_spot or yield_per_day (default from config)")
	refreshCmd.Flags().String("side", "", "only show call or put rows")
	refreshCmd.Flags().Int("limit", -1, "show at most N rows (0 = all, default from config)")
	refreshCmd.Flags().Int("concurrency", 0, "parallel instrument fetches (default from config)")
	refreshCmd.Flags().String("codes", "", "comma separated instrument codes to restrict the refresh to")
}

type refreshOptions struct {
	sort        models.SortKey
	side        models.Side
	limit       int
	concurrency int
	codes       []string
}

// refreshOptionsFromFlags merges command flags over the refresh config.
func refreshOptionsFromFlags(cmd *cobra.Command) (refreshOptions, error) {
	sortFlag, _ := cmd.Flags().GetString("sort")
	sideFlag, _ := cmd.Flags().GetString("side")
	limit, _ := cmd.Flags().GetInt("limit")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	codes, _ := cmd.Flags().GetString("codes")

	if sortFlag == "" {
		sortFlag = cfg.Refresh.SortKey
	}
	if sideFlag == "" {
		sideFlag = cfg.Refresh.Side
	}
	if limit < 0 {
		limit = cfg.Refresh.Limit
	}
	if concurrency < 0 {
		return refreshOptions{}, fmt.Errorf("--concurrency must not be negative")
	}

	key, err := models.ParseSortKey(sortFlag)
	if err != nil {
		return refreshOptions{}, err
	}
	side, err := models.ParseSide(sideFlag)
	if err != nil {
		return refreshOptions{}, err
	}
	return refreshOptions{
		sort:        key,
		side:        side,
		limit:       limit,
		concurrency: concurrency,
		codes:       utils.SplitCodes(codes),
	}, nil
}

// apply filters by side and truncates to the limit.
func (o refreshOptions) apply(records []models.ValuationRecord) []models.ValuationRecord {
	records = models.FilterSide(records, o.side)
	if o.limit > 0 && o.limit < len(records) {
		records = records[:o.limit]
	}
	return records
}

// followProgress prints the status line every interval until the cycle drains.
func followProgress(ctx context.Context, cycle *pipeline.RefreshCycle, w io.Writer, interval time.Duration) models.ProgressState {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-cycle.Done():
			return cycle.Wait()
		case <-ticker.C:
			if status := cycle.Progress().Status(); status != "" && status != last {
				fmt.Fprintln(w, status)
				last = status
			}
		case <-ctx.Done():
			fmt.Fprintln(w, "interrupted, waiting for in-flight instruments")
			return cycle.Wait()
		}
	}
}

func printRecords(w io.Writer, records []models.ValuationRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Instrument\tSide\tMaturity\tDays\tSpot\tStrike\tBid\tAsk\tTime value\tYield\tYield/day\t")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.InstrumentDisplay,
			r.Side,
			utils.FormatDateAMS(r.MaturityDate),
			r.DaysToMature,
			utils.FormatEUR(r.SpotPrice),
			utils.FormatEUR(r.Strike),
			utils.FormatEUR(r.Bid),
			utils.FormatEUR(r.Ask),
			utils.FormatEUR(r.TimeValue),
			utils.FormatPct(r.YieldPerSpot, 2),
			utils.FormatPct(r.YieldPerDay, 3),
		)
	}
	_ = tw.Flush()
}

func printInstruments(w io.Writer, instruments []models.Instrument) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Code\tName\tUnderlying\tSeries\t")
	for _, inst := range instruments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", inst.Code, inst.DisplayName, inst.PriceID(), inst.PeriodKind)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d instruments\n", len(instruments))
}
