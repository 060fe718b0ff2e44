package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"reservations/internal/usecase"
)

func NewQueuesCommand(rootOpts *RootOptions, open BackendOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show live and dead-letter queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(rootOpts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			insp, err := b.Inspector()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to connect to transport", err)
			}

			d, err := usecase.NewGetQueues(insp).Execute(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read queue depths", err)
			}

			return render(cmd.OutOrStdout(), rootOpts.Format, d, []row{
				{"transport", d.Transport},
				{"live", d.Live},
				{"in_flight", d.InFlight},
				{"dead_letter", d.DeadLetter},
			})
		},
	}
}
