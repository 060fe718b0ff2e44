package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reservations/internal/application/factories/infrastructure"
	"reservations/internal/config"
	"reservations/internal/usecase"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Config string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Backend opens the stores and transport the commands read from.
type Backend interface {
	Ledger(ctx context.Context) (usecase.LedgerReader, error)
	Stock(ctx context.Context) (usecase.StockReader, error)
	Inspector() (usecase.DepthInspector, error)
	Close()
}

// BackendOpener builds a Backend from the config file path.
type BackendOpener func(configPath string) (Backend, error)

// NewRootCommand creates the root command for the inspect CLI.
func NewRootCommand(open BackendOpener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect the inventory reservation consumer",
		Long: `Read-only view of the reservation ledger, stock levels and queue depths.

Uses the same configuration as the consumer (config.yaml and env vars).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "config.yaml", "path to config file")

	cmd.AddCommand(NewLedgerCommand(opts, open))
	cmd.AddCommand(NewStockCommand(opts, open))
	cmd.AddCommand(NewQueuesCommand(opts, open))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// OpenFactoryBackend is the production opener backed by the infrastructure factory.
func OpenFactoryBackend(configPath string) (Backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &factoryBackend{f: infrastructure.NewFactory(cfg, nil)}, nil
}

type factoryBackend struct {
	f *infrastructure.Factory
}

func (b *factoryBackend) Ledger(ctx context.Context) (usecase.LedgerReader, error) {
	s, err := b.f.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Ledger, nil
}

func (b *factoryBackend) Stock(ctx context.Context) (usecase.StockReader, error) {
	s, err := b.f.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Inventory, nil
}

func (b *factoryBackend) Inspector() (usecase.DepthInspector, error) {
	return b.f.Inspector()
}

func (b *factoryBackend) Close() {
	b.f.Close()
}
