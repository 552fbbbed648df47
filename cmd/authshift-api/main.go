package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authshift/authshift/internal/auth"
	"github.com/authshift/authshift/internal/config"
	"github.com/authshift/authshift/internal/database"
	"github.com/authshift/authshift/internal/logging"
	"github.com/authshift/authshift/internal/migrate"
	"github.com/authshift/authshift/internal/server"
	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authshift-api",
		Short: "Authshift identity-store migration service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("source-database-path", defaults.GetString("source.database_path"), "Source identity store path")
	cmd.PersistentFlags().String("target-database-path", defaults.GetString("target.database_path"), "Target identity store path")
	cmd.PersistentFlags().Int("batch-size", defaults.GetInt("migration.batch_size"), "Records per fetch/write cycle")
	cmd.PersistentFlags().String("resume-from-id", "", "Cursor id to resume a prior run from")
	cmd.PersistentFlags().String("temp-email-domain", defaults.GetString("migration.temp_email_domain"), "Domain for synthetic phone-only emails")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("operator-signing-secret", "", "Operator token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "source.database_path", "source-database-path")
	bindFlag(cmd, "target.database_path", "target-database-path")
	bindFlag(cmd, "migration.batch_size", "batch-size")
	bindFlag(cmd, "migration.resume_from_id", "resume-from-id")
	bindFlag(cmd, "migration.temp_email_domain", "temp-email-domain")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "operator.signing_secret", "operator-signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sourceDB, err := database.OpenSource(appConfig.SourceDatabasePath, logger)
	if err != nil {
		return err
	}
	sourceSQL, err := sourceDB.DB()
	if err != nil {
		return err
	}
	defer sourceSQL.Close()

	targetDB, err := database.OpenTarget(appConfig.TargetDatabasePath, logger)
	if err != nil {
		return err
	}
	targetSQL, err := targetDB.DB()
	if err != nil {
		return err
	}
	defer targetSQL.Close()

	paginator, err := source.NewPaginator(source.PaginatorConfig{Database: sourceDB})
	if err != nil {
		return err
	}

	writer, err := migrate.NewBulkWriter(migrate.BulkWriterConfig{
		Database:     targetDB,
		ParamCeiling: appConfig.ParamCeiling,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	capabilities := target.Capabilities{
		Admin:       appConfig.AdminCapability,
		Anonymous:   appConfig.AnonymousCapability,
		PhoneNumber: appConfig.PhoneCapability,
		Providers:   appConfig.SupportedProviders,
	}

	tracker := migrate.NewTracker(time.Now)
	migrator, err := migrate.NewService(migrate.ServiceConfig{
		Paginator:       paginator,
		Writer:          writer,
		Tracker:         tracker,
		Capabilities:    capabilities,
		TempEmailDomain: appConfig.TempEmailDomain,
		BatchSize:       appConfig.BatchSize,
		Clock:           time.Now,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	validator, err := auth.NewOperatorValidator(auth.OperatorValidatorConfig{
		SigningSecret: []byte(appConfig.OperatorSigningKey),
		Issuer:        appConfig.OperatorIssuer,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Migrator:  migrator,
		Tracker:   tracker,
		Validator: validator,
		Defaults: server.StartDefaults{
			BatchSize:    appConfig.BatchSize,
			ResumeFromID: appConfig.ResumeFromID,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
