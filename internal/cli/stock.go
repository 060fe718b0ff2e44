package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"reservations/internal/domain/inventory"
	"reservations/internal/usecase"
)

func NewStockCommand(rootOpts *RootOptions, open BackendOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stock [item]",
		Short: "Show stock for all items or one item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(rootOpts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			repo, err := b.Stock(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				s, err := usecase.NewGetStock(nil, repo).Execute(ctx, args[0])
				if errors.Is(err, inventory.ErrItemNotFound) {
					return WrapExitError(ExitFailure, "unknown item "+args[0], err)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read stock", err)
				}
				return render(out, rootOpts.Format, s, []row{{s.Item, s.QuantityAvailable}})
			}

			items, err := usecase.NewListStock(repo).Execute(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read stock", err)
			}
			if items == nil {
				items = []*inventory.Stock{}
			}

			rows := make([]row, 0, len(items))
			for _, s := range items {
				rows = append(rows, row{s.Item, s.QuantityAvailable})
			}
			return render(out, rootOpts.Format, items, rows)
		},
	}
}
