package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"foodforge/internal/auth"
	"foodforge/internal/config"
	"foodforge/internal/identity"
	"foodforge/internal/store"
)

func openMigrated(ctx context.Context, cfg config.App) (*store.DB, error) {
	db, err := store.Open(cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := openMigrated(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.Dialect)
			return nil
		},
	}
}

// AdminPasswordEnv supplies the create-admin password when --password is not given.
const AdminPasswordEnv = "FORGE_ADMIN_PASSWORD"

func createAdminCmd() *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long: `Create an admin (scanning station or mess staff) account.

The password is read from --password, or from the ` + AdminPasswordEnv + `
environment variable so it stays out of shell history.

Examples:
  FORGE_ADMIN_PASSWORD=... forgectl create-admin --email warden@example.edu --name "Mess Warden"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(AdminPasswordEnv)
			}
			if password == "" {
				return fmt.Errorf("password required: pass --password or set %s", AdminPasswordEnv)
			}
			cfg := config.Load()
			db, err := openMigrated(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
			provider := identity.NewProvider(identity.NewSQLStore(db), issuer, identity.ProviderOptions{})
			id, err := provider.Register(cmd.Context(), identity.RegisterInput{
				Email:    email,
				Password: password,
				FullName: name,
				Role:     identity.RoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s <%s>\n", id.ID, id.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer "+AdminPasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
