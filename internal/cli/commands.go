package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignatzorin/barter-backend/internal/app"
	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/db"
	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/barter-backend/internal/interface/http/dto"
	"github.com/ignatzorin/barter-backend/internal/service"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить SQL миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.StorageDriverPostgres {
				return fmt.Errorf("migrate: нужен STORAGE_DRIVER=%s", config.StorageDriverPostgres)
			}
			conn, err := db.NewPostgres(cmd.Context(), cfg.DatabaseURL, db.DefaultPoolConfig())
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := db.RunMigrations(cmd.Context(), conn, cfg.MigrationsPath)
			if err != nil {
				return err
			}
			text := "миграции актуальны"
			if len(applied) > 0 {
				text = "применены: " + strings.Join(applied, ", ")
			}
			return printResult(cmd.OutOrStdout(), opts.Format, map[string]any{"applied": applied}, text)
		},
	}
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Один проход фоновых задач: сдачи в пункт, удержания, цепочки",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(a *app.App) error {
				res, expired, err := a.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out := map[string]int{
					"expired_drop_offs":   res.ExpiredDropOffs,
					"released_holds":      res.ReleasedHolds,
					"expired_multi_swaps": expired,
				}
				text := fmt.Sprintf("drop-off отменено: %d, удержаний снято: %d, цепочек истекло: %d",
					res.ExpiredDropOffs, res.ReleasedHolds, expired)
				return printResult(cmd.OutOrStdout(), opts.Format, out, text)
			})
		},
	}
}

func newOpportunitiesCommand(opts *RootOptions) *cobra.Command {
	var (
		userID   string
		minScore float64
		balanced bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "Показать найденные цепочки обмена",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := chain.OpportunitiesQuery{MinScore: minScore, BalancedOnly: balanced, Limit: limit}
			if userID != "" {
				id, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("opportunities: некорректный --user: %w", err)
				}
				q.UserID = &id
			}
			return opts.withApp(cmd, false, func(a *app.App) error {
				res, err := chain.NewQueryOpportunitiesUseCase(a.Engine).Execute(cmd.Context(), q)
				if err != nil {
					return err
				}
				var b strings.Builder
				fmt.Fprintf(&b, "найдено цепочек: %d", res.Total)
				for i := range res.Chains {
					c := &res.Chains[i]
					fmt.Fprintf(&b, "\n%.1f\tlen=%d\tbalanced=%t\t%s", c.TotalScore, c.ChainLength, c.IsValueBalanced, c.Key())
				}
				return printResult(cmd.OutOrStdout(), opts.Format, dto.ToChainResponses(res.Chains), b.String())
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "только цепочки с участием пользователя")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "минимальная итоговая оценка 0..100")
	cmd.Flags().BoolVar(&balanced, "balanced", false, "только сбалансированные по стоимости")
	cmd.Flags().IntVar(&limit, "limit", 0, "сколько цепочек показать")
	return cmd
}

func newProductCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Каталог товаров",
	}

	var (
		id, owner, title string
		value            int64
		lat, lon         float64
		inactive         bool
	)
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Завести или обновить товар",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("product: некорректный --owner: %w", err)
			}
			productID := uuid.New()
			if id != "" {
				if productID, err = uuid.Parse(id); err != nil {
					return fmt.Errorf("product: некорректный --id: %w", err)
				}
			}
			valor, err := valueobject.NewValor(value)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			p := &entity.Product{
				ID:        productID,
				OwnerID:   ownerID,
				Title:     title,
				Value:     valor,
				Active:    !inactive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				loc := valueobject.Location{Latitude: lat, Longitude: lon}
				if !loc.IsValid() {
					return fmt.Errorf("product: координаты вне допустимого диапазона")
				}
				p.Location = &loc
			}

			return opts.withApp(cmd, false, func(a *app.App) error {
				if err := saveProduct(cmd.Context(), a, p); err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts.Format, map[string]any{"id": p.ID}, "товар сохранён: "+p.ID.String())
			})
		},
	}
	upsert.Flags().StringVar(&id, "id", "", "ID товара, по умолчанию новый")
	upsert.Flags().StringVar(&owner, "owner", "", "ID владельца")
	upsert.Flags().StringVar(&title, "title", "", "название")
	upsert.Flags().Int64Var(&value, "value", 0, "оценка в Valor")
	upsert.Flags().Float64Var(&lat, "lat", 0, "широта")
	upsert.Flags().Float64Var(&lon, "lon", 0, "долгота")
	upsert.Flags().BoolVar(&inactive, "inactive", false, "снять товар с обмена")
	_ = upsert.MarkFlagRequired("owner")
	_ = upsert.MarkFlagRequired("title")

	cmd.AddCommand(upsert)
	return cmd
}

func newLedgerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Баланс Valor",
	}

	var (
		user   string
		amount int64
	)
	deposit := &cobra.Command{
		Use:   "deposit",
		Short: "Пополнить доступный остаток",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("ledger: некорректный --user: %w", err)
			}
			return opts.withApp(cmd, false, func(a *app.App) error {
				w, err := walletOf(a)
				if err != nil {
					return err
				}
				if err := w.Deposit(cmd.Context(), userID, amount); err != nil {
					return err
				}
				balance, err := w.Balance(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts.Format,
					map[string]any{"user_id": userID, "available": balance},
					fmt.Sprintf("доступно: %d", balance))
			})
		},
	}
	deposit.Flags().StringVar(&user, "user", "", "ID пользователя")
	deposit.Flags().Int64Var(&amount, "amount", 0, "сумма в Valor")
	_ = deposit.MarkFlagRequired("user")
	_ = deposit.MarkFlagRequired("amount")

	balance := &cobra.Command{
		Use:   "balance",
		Short: "Показать доступный остаток",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("ledger: некорректный --user: %w", err)
			}
			return opts.withApp(cmd, false, func(a *app.App) error {
				w, err := walletOf(a)
				if err != nil {
					return err
				}
				available, err := w.Balance(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts.Format,
					map[string]any{"user_id": userID, "available": available},
					fmt.Sprintf("доступно: %d", available))
			})
		},
	}
	balance.Flags().StringVar(&user, "user", "", "ID пользователя")
	_ = balance.MarkFlagRequired("user")

	cmd.AddCommand(deposit, balance)
	return cmd
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Access токены",
	}

	var (
		user string
		role string
		ttl  time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Выпустить access токен для пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("token: некорректный --user: %w", err)
			}
			if role != service.RoleUser && role != service.RoleAdmin {
				return fmt.Errorf("token: роль должна быть %s или %s", service.RoleUser, service.RoleAdmin)
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenTTL
			}
			token, expiresAt, err := service.NewTokenManager(cfg.JWTSecret, ttl).Issue(userID, role)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Format,
				map[string]any{"token": token, "expires_at": expiresAt},
				token)
		},
	}
	issue.Flags().StringVar(&user, "user", "", "ID пользователя")
	issue.Flags().StringVar(&role, "role", service.RoleUser, "роль: user или admin")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "время жизни, по умолчанию ACCESS_TOKEN_TTL")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}

type productUpserter interface {
	Upsert(ctx context.Context, p *entity.Product) error
}

func saveProduct(ctx context.Context, a *app.App, p *entity.Product) error {
	if a.Storage.Memory != nil {
		a.Storage.Memory.Products().Save(ctx, p)
		return nil
	}
	u, ok := a.Storage.Products.(productUpserter)
	if !ok {
		return fmt.Errorf("product: хранилище не поддерживает запись товаров")
	}
	return u.Upsert(ctx, p)
}

// wallet - операции с остатком, которых нет в доменном Ledger.
type wallet interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount int64) error
}

type memoryWallet struct {
	ledger *memory.Ledger
}

func (w memoryWallet) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return w.ledger.Balance(ctx, userID), nil
}

func (w memoryWallet) Deposit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: сумма пополнения должна быть положительной")
	}
	w.ledger.SetBalance(ctx, userID, w.ledger.Balance(ctx, userID)+amount)
	return nil
}

func walletOf(a *app.App) (wallet, error) {
	if a.Storage.Memory != nil {
		return memoryWallet{ledger: a.Storage.Memory.Ledger()}, nil
	}
	w, ok := a.Storage.Ledger.(wallet)
	if !ok {
		return nil, fmt.Errorf("ledger: хранилище не поддерживает пополнение")
	}
	return w, nil
}
