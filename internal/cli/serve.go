package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"interview-coach/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP и WebSocket API",
	Long: `Поднимает API для веб-интерфейса: сессии интервью, поток событий
по WebSocket, прием распознанной речи, результаты и метрики.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Порт (по умолчанию SERVER_PORT или 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	gen, err := a.generator()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	srvCfg := a.env.Server
	port := srvCfg.Port
	if servePort > 0 {
		port = servePort
	}

	srv := server.New(server.Options{
		Generator:            gen,
		Session:              a.cfg.SessionOptions(),
		Store:                store,
		Metrics:              a.metrics,
		Logger:               a.log,
		DefaultQuestionCount: a.cfg.Interview.DefaultQuestionCount,
		ReadTimeout:          srvCfg.ReadTimeout,
		WriteTimeout:         srvCfg.WriteTimeout,
		ShutdownTimeout:      srvCfg.ShutdownTimeout,
		AllowedOrigins:       srvCfg.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting server", "port", port, "storage", a.env.Storage.Driver)
	if err := srv.Run(ctx, fmt.Sprintf(":%d", port)); err != nil {
		return fmt.Errorf("ошибка сервера: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
