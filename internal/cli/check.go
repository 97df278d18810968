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
	"github.com/vietddude/tiebasign/internal/core/domain"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
)

var showFullNames bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the BDUSS cookie and list followed forums",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&showFullNames, "full", false, "print forum names unmasked")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.Account.BDUSS == "" {
		return control.ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := tieba.NewClient(cfg.Tieba)
	identity, err := client.Authenticate(ctx, cfg.Account.BDUSS)
	if err != nil {
		return &control.AuthError{Err: err}
	}
	items, err := client.ListForums(ctx, cfg.Account.BDUSS)
	if err != nil {
		return fmt.Errorf("failed to list forums: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "User %s follows %d forums\n\n", identity.UserID, len(items))
	return printForums(out, items, showFullNames)
}

func printForums(out io.Writer, items []domain.Item, full bool) error {
	if len(items) == 0 {
		return errors.New("no followed forums")
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tFORUM\tLEVEL\tSIGNED")
	signed := 0
	for _, item := range items {
		name := item.MaskedName()
		if full {
			name = item.Name
		}
		mark := "no"
		if item.AlreadyDone {
			mark = "yes"
			signed++
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", item.Index, name, item.Level, mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\n%d/%d already signed today\n", signed, len(items))
	return nil
}
