package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bedlink/bedlink/internal/config"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
	"github.com/bedlink/bedlink/migrations"
)

const serviceName = "bedlink"

func main() {
	rootCmd := &cobra.Command{
		Use:          "bedlink-server",
		Short:        "Emergency bed coordination API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(hospitalCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reservation sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetString("seed-hospital")
			return runServer(seed)
		},
	}
	cmd.Flags().String("seed-hospital", "", "Create a hospital with this name at startup (memory store only)")
	return cmd
}

func runServer(seedHospital string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, versioninfo.Short(), cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if seedHospital != "" {
		if cfg.StoreBackend != config.BackendMemory {
			return fmt.Errorf("--seed-hospital is only supported with STORE_BACKEND=memory")
		}
		h := &ward.Hospital{Name: seedHospital}
		if err := a.wards.CreateHospital(ctx, h); err != nil {
			return err
		}
		logger.Info().Str("hospital_id", h.ID.String()).Str("name", h.Name).Msg("seeded hospital")
	}

	go a.sweeper.Run(ctx)

	e := a.newServer()
	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", versioninfo.Short()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openMigrator := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		dir, _ := cmd.Flags().GetString("dir")
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.StoreBackend != config.BackendPostgres {
			return nil, nil, fmt.Errorf("migrations need STORE_BACKEND=postgres")
		}
		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		if dir != "" {
			return db.NewMigrator(pool, os.DirFS(dir)), pool.Close, nil
		}
		return db.NewMigrator(pool, migrations.FS), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Load migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Load migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue bed reservations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg.IsDev()))
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d reservation(s).\n", n)
			return nil
		},
	}
}

func hospitalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hospital",
		Short: "Manage hospitals",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a hospital",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			region, _ := cmd.Flags().GetString("region")
			district, _ := cmd.Flags().GetString("district")
			phone, _ := cmd.Flags().GetString("phone")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != config.BackendPostgres {
				return fmt.Errorf("hospital create needs STORE_BACKEND=postgres")
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg.IsDev()))
			if err != nil {
				return err
			}
			defer a.Close()

			h := &ward.Hospital{
				Name:     name,
				Region:   optional(region),
				District: optional(district),
				Phone:    optional(phone),
			}
			if err := a.wards.CreateHospital(cmd.Context(), h); err != nil {
				return err
			}
			fmt.Printf("Hospital %q created with id %s\n", h.Name, h.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Hospital name")
	createCmd.Flags().String("region", "", "Region")
	createCmd.Flags().String("district", "", "District")
	createCmd.Flags().String("phone", "", "Contact phone")
	cmd.AddCommand(createCmd)

	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			rawHospital, _ := cmd.Flags().GetString("hospital")
			rawRoles, _ := cmd.Flags().GetString("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}

			actor, err := tokenActor(user, rawHospital, rawRoles)
			if err != nil {
				return err
			}
			token, err := auth.SignToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthKey),
			}, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "Subject (user id)")
	cmd.Flags().String("hospital", "", "Hospital id")
	cmd.Flags().String("roles", auth.RoleDoctor, "Comma-separated roles")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func tokenActor(user, rawHospital, rawRoles string) (auth.Actor, error) {
	if user == "" {
		return auth.Actor{}, fmt.Errorf("--user is required")
	}
	a := auth.Actor{UserID: user}
	if rawHospital != "" {
		id, err := uuid.Parse(rawHospital)
		if err != nil {
			return auth.Actor{}, fmt.Errorf("--hospital must be a UUID: %w", err)
		}
		a.HospitalID = id
	}
	for _, r := range strings.Split(rawRoles, ",") {
		switch r = strings.TrimSpace(r); r {
		case "":
		case auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse:
			a.Roles = append(a.Roles, r)
		default:
			return auth.Actor{}, fmt.Errorf("unknown role %q", r)
		}
	}
	return a, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (revision %s, built %s)\n", serviceName, versioninfo.Version,
				versioninfo.Revision, versioninfo.LastCommit.Format(time.RFC3339))
		},
	}
}
