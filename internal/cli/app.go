package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"interview-coach/internal/api"
	"interview-coach/internal/config"
	"interview-coach/internal/interviewer"
	"interview-coach/internal/metrics"
	"interview-coach/internal/storage"
)

// app - общие зависимости команд
type app struct {
	cfg     *config.Config
	env     *config.AppConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

func loadApp(cmd *cobra.Command) (*app, error) {
	log := newLogger(verbose)
	slog.SetDefault(log)

	var (
		cfg *config.Config
		err error
	)
	// явно заданный файл обязан существовать
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadOrDefault(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации интервью: %w", err)
	}

	return &app{
		cfg:     cfg,
		env:     config.LoadAppConfig(),
		log:     log,
		metrics: metrics.NewMetrics(),
	}, nil
}

// generator собирает клиента OpenAI и сервис интервьюера
func (a *app) generator() (*interviewer.Service, error) {
	openai := a.env.OpenAI
	if err := openai.ValidateConfig(); err != nil {
		return nil, err
	}
	client := api.NewOpenAIClientWithConfig(openai.APIKey, openai.ClientOptions())
	a.log.Debug("openai client configured", "model", openai.GetModelInfo())

	opts := a.cfg.InterviewerOptions(openai.MaxTokens)
	opts.Metrics = a.metrics
	opts.Logger = a.log
	return interviewer.New(client, opts), nil
}

func (a *app) openStore() (storage.Store, error) {
	store, err := storage.Open(a.env.Storage.Driver, a.env.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия хранилища: %w", err)
	}
	return store, nil
}
