// Package cli - команды администрирования swapctl.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/barter-backend/internal/app"
	"github.com/ignatzorin/barter-backend/internal/config"
)

// RootOptions - общие флаги и фабрики зависимостей всех команд.
type RootOptions struct {
	Format string // "json" | "text"

	// LoadConfig и NewApp подменяются в тестах.
	LoadConfig func() (*config.Config, error)
	NewApp     func(ctx context.Context, cfg *config.Config, opts app.Options) (*app.App, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand создаёт корневую команду swapctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.Load,
		NewApp:     app.New,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swapctl",
		Short: "swapctl - администрирование сервиса обмена",
		Long:  "Миграции, фоновые задачи, каталог товаров, баланс Valor и выпуск токенов для сервиса обмена.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newOpportunitiesCommand(opts))
	cmd.AddCommand(newProductCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

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

// withApp загружает конфигурацию, собирает приложение и закрывает его после fn.
func (o *RootOptions) withApp(cmd *cobra.Command, migrate bool, fn func(a *app.App) error) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return err
	}
	a, err := o.NewApp(cmd.Context(), cfg, app.Options{Migrate: migrate})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
