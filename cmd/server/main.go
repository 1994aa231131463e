package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activation-portal/internal/auth"
	"activation-portal/internal/config"
	"activation-portal/internal/database"
	"activation-portal/internal/getcid"
	"activation-portal/internal/handler"
	"activation-portal/internal/logger"
	"activation-portal/internal/metrics"
	"activation-portal/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Open(cfg, zl)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.SeedAdmin(db, cfg.AdminEmail, cfg.AdminPassword, zl); err != nil {
		return err
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder()
	}

	upstream := getcid.NewClient(cfg.GetCID.APIURL, cfg.GetCID.Token,
		getcid.WithTimeout(cfg.GetCID.Timeout),
		getcid.WithUserAgent(cfg.GetCID.UserAgent),
	)

	keys := service.NewKeyStore(db)
	ledger := service.NewLedger(db, zl, rec)

	deps := handler.Deps{
		Keys:     keys,
		Ledger:   ledger,
		Redeemer: service.NewRedeemer(keys, ledger, upstream, zl, rec),
		Auth:     auth.NewService(db, cfg.JWTSecret, cfg.TokenTTL, cfg.AdminEmail, zl),
		Audit:    service.NewAuditLog(db),
		Log:      zl,
	}

	sheetSync, err := service.NewSheetSyncService(ctx, cfg.SheetSync.Enabled,
		cfg.SheetSync.CredentialsFile, cfg.SheetSync.SpreadsheetID, cfg.SheetSync.SheetName, zl)
	if err != nil {
		return err
	}
	if sheetSync != nil {
		deps.Mirror = sheetSync
		zl.Info("key mirror enabled", zap.String("spreadsheet_id", cfg.SheetSync.SpreadsheetID))
	}

	app := handler.NewApp(handler.New(deps), handler.AppConfig{
		AppName:     cfg.AppName,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     rec,
	}, zl)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("listening", zap.String("addr", cfg.ListenAddr))
		return app.Listen(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}
