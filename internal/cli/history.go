package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tiebasign/internal/control"
	redisclient "github.com/vietddude/tiebasign/internal/infra/redis"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived run reports from Redis",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of reports to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url (REDIS_URL) is required for history")
	}
	if cfg.Account.BDUSS == "" {
		return control.ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	identity, err := tieba.NewClient(cfg.Tieba).Authenticate(ctx, cfg.Account.BDUSS)
	if err != nil {
		return &control.AuthError{Err: err}
	}

	rc, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	reports, err := rc.RecentReports(ctx, identity.UserID, historyLimit)
	if err != nil {
		return err
	}
	return printHistory(cmd.OutOrStdout(), reports)
}

func printHistory(out io.Writer, reports []redisclient.Report) error {
	if len(reports) == 0 {
		_, _ = fmt.Fprintln(out, "No archived runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "FINISHED\tTOTAL\tSUCCESS\tALREADY\tFAILED\tDURATION")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total, r.Success, r.AlreadyDone, r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	return w.Flush()
}
