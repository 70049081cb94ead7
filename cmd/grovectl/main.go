package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/db"
	"github.com/Marga-Ghale/grove-backend/internal/logger"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var operatorID string

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "grovectl",
		Short:        "Operator tooling for the grove lifecycle engine",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&operatorID, "as", "", "act as this account id (empty acts as the system)")

	rootCmd.AddCommand(migrateCmd(cfg))
	rootCmd.AddCommand(groveCmd(cfg, "freeze-grove", "Freeze a grove and its dependent trees", func(ctx context.Context, s *service.Services, id string, actor *service.Caller) (int, error) {
		return s.Membership.FreezeGrove(ctx, id, actor)
	}))
	rootCmd.AddCommand(groveCmd(cfg, "unfreeze-grove", "Reactivate a grove and its frozen trees", func(ctx context.Context, s *service.Services, id string, actor *service.Caller) (int, error) {
		return s.Membership.UnfreezeGrove(ctx, id, actor)
	}))
	rootCmd.AddCommand(treeCmd(cfg, "freeze-tree", "Freeze one grove membership", func(ctx context.Context, s *service.Services, id string, actor *service.Caller) (bool, error) {
		return s.Membership.FreezeTree(ctx, id, actor)
	}))
	rootCmd.AddCommand(treeCmd(cfg, "unfreeze-tree", "Reactivate one grove membership", func(ctx context.Context, s *service.Services, id string, actor *service.Caller) (bool, error) {
		return s.Membership.UnfreezeTree(ctx, id, actor)
	}))
	rootCmd.AddCommand(treeCmd(cfg, "expire-tree-subscription", "Freeze a membership whose subscription lapsed, unless its grove is active", func(ctx context.Context, s *service.Services, id string, _ *service.Caller) (bool, error) {
		return s.Membership.FreezeTreeOnSubscriptionExpiry(ctx, id)
	}))
	rootCmd.AddCommand(sweepCmd(cfg))
	rootCmd.AddCommand(devTokenCmd(cfg))
	rootCmd.AddCommand(auditCmd(cfg))

	return rootCmd
}

// engine is the wiring shared by commands that touch the database.
type engine struct {
	pg       *db.PostgresDB
	repos    *repository.Repositories
	services *service.Services
}

func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	log := cliLogger(cfg)
	pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, logger.Component(log, "postgres"))
	if err != nil {
		return nil, err
	}
	repos := repository.NewRepositories(pg.Pool, pg.SQL)
	services := service.NewServices(&service.ServiceDeps{
		Config: cfg,
		Repos:  repos,
		Logger: log,
	})
	return &engine{pg: pg, repos: repos, services: services}, nil
}

func (e *engine) Close() {
	e.pg.Close()
}

func cliLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(cfg.Environment, cfg.LogLevel)
}

func actor() *service.Caller {
	if operatorID == "" {
		return nil
	}
	return &service.Caller{AccountID: operatorID}
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.RunMigrations(cfg.DatabaseURL, cliLogger(cfg))
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return db.RollbackMigrations(cfg.DatabaseURL, steps, cliLogger(cfg))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func groveCmd(cfg *config.Config, use, short string, op func(context.Context, *service.Services, string, *service.Caller) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [grove-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			changed, err := op(cmd.Context(), e.services, args[0], actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grove %s: %d memberships changed\n", args[0], changed)
			return nil
		},
	}
}

func treeCmd(cfg *config.Config, use, short string, op func(context.Context, *service.Services, string, *service.Caller) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [membership-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			changed, err := op(cmd.Context(), e.services, args[0], actor())
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "membership %s: unchanged\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "membership %s: updated\n", args[0])
			return nil
		},
	}
}

func sweepCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-transfers",
		Short: "Rewrite pending transfers past their expiry as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.services.Transfer.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d transfers\n", n)
			return nil
		},
	}
}

func devTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		sub   string
		email string
		name  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Mint a signed caller token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Environment == "production" {
				return fmt.Errorf("dev-token is disabled in production")
			}
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}
			auth := service.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer)
			token, err := auth.GenerateToken(service.Caller{AccountID: sub, Email: email, DisplayName: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&sub, "sub", "", "account id")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func auditCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [target-type] [target-id]",
		Short: "Print the audit trail for one target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := repository.NewAuditReader(e.pg.SQL).FindByTarget(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printAudit(cmd.OutOrStdout(), events)
		},
	}
}

func printAudit(w io.Writer, events []*repository.AuditEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "no audit events")
		return nil
	}
	for _, ev := range events {
		who := ev.ActorType
		if ev.ActorID != nil {
			who += ":" + *ev.ActorID
		}
		meta := "{}"
		if len(ev.Metadata) > 0 {
			var compact map[string]any
			if err := json.Unmarshal(ev.Metadata, &compact); err != nil {
				return fmt.Errorf("decode metadata of %s: %w", ev.ID, err)
			}
			raw, _ := json.Marshal(compact)
			meta = string(raw)
		}
		fmt.Fprintf(w, "%s  %-24s %-20s %s\n", ev.CreatedAt.Format(time.RFC3339), ev.Action, who, meta)
	}
	return nil
}
