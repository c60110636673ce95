// Package cli - команды cobra: HTTP сервер, тренировка в терминале и просмотр результатов.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	version    = "dev" // заполняется через ldflags при сборке
)

const defaultConfigPath = "config/interview.yaml"

var rootCmd = &cobra.Command{
	Use:   "interview-coach",
	Short: "Тренажер собеседований с голосовым интервьюером",
	Long: `interview-coach генерирует вопросы под роль и уровень кандидата,
проводит тренировочный звонок с распознаванием речи, разбирает каждый ответ
и подводит итоговую оценку.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute запускает корневую команду. Вызывается из main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Verbose returns true if --verbose flag is set.
func Verbose() bool {
	return verbose
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Подробный журнал (debug)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Путь к YAML конфигурации интервью")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rehearseCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(telegramCmd)
}
