package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/irrigo/app"
	"github.com/kilianp07/irrigo/config"
	"github.com/kilianp07/irrigo/core/cycle"
	"github.com/kilianp07/irrigo/core/model"
	"github.com/kilianp07/irrigo/infra/logger"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle now and print a summary",
	RunE:  poll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func poll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("poll-command").Errorf("service close: %v", err)
		}
	}()
	return printReport(cmd.OutOrStdout(), svc.RunOnce(ctx))
}

func printReport(out io.Writer, rep cycle.Report) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTATION\tOUTCOME\tSOIL\tAIR\tTEMP\tIRRIGATED\tSAVED\tERROR")
	for _, r := range rep.Results {
		outcome := r.Outcome.Kind.String()
		if r.Skipped {
			outcome = "skipped"
		}
		irrigated := "-"
		if r.Decision.Triggered {
			irrigated = fmt.Sprintf("%v mm", r.Decision.Amount)
			if !r.Dispatched {
				irrigated += " (failed)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.TenantID, r.StationID, outcome,
			value(r.Outcome.Snapshot, model.SoilMoisture),
			value(r.Outcome.Snapshot, model.AirHumidity),
			value(r.Outcome.Snapshot, model.Temperature),
			irrigated, r.Persisted, firstErr(r))
	}
	fmt.Fprintf(w, "\n%d tenants, %d stations, %d skipped, %d commands in %s\n",
		rep.Tenants, len(rep.Results), rep.SkippedCount(), rep.DispatchedCount(), rep.Duration)
	return w.Flush()
}

func value(s model.SensorSnapshot, k model.MeasurementKind) string {
	if v, ok := s.Get(k); ok {
		return fmt.Sprintf("%v", v)
	}
	return "-"
}

func firstErr(r cycle.StationResult) string {
	for _, err := range []error{r.Err, r.DispatchErr, r.PersistErr} {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}
