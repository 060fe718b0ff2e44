package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"reservations/internal/domain/reservation"
	"reservations/internal/usecase"
)

func NewLedgerCommand(rootOpts *RootOptions, open BackendOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger [event_id]",
		Short: "Show the ledger size or one ledger record",
		Example: `  inspect ledger
  inspect ledger ORD-1 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(rootOpts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			repo, err := b.Ledger(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			uc := usecase.NewGetLedger(repo)
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				sum, err := uc.Summary(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read ledger", err)
				}
				return render(out, rootOpts.Format, sum, []row{{"records", sum.Records}})
			}

			rec, err := uc.Record(ctx, args[0])
			if errors.Is(err, reservation.ErrRecordNotFound) {
				return WrapExitError(ExitFailure, "no ledger record for "+args[0], err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read ledger", err)
			}

			rows := []row{
				{"event_id", rec.EventID},
				{"item", rec.Item},
				{"quantity", rec.Quantity},
				{"outcome", rec.Outcome},
			}
			if rec.Outcome == reservation.OutcomeApplied {
				rows = append(rows, row{"reservation_id", rec.ReservationID}, row{"remaining", rec.Remaining})
			} else {
				rows = append(rows, row{"reason", rec.Reason})
			}
			rows = append(rows, row{"committed_at", rec.CommittedAt.Format(time.RFC3339)})

			return render(out, rootOpts.Format, rec, rows)
		},
	}
}
