package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"interview-coach/internal/telegram"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Запустить Telegram бота для тренировки в чате",
	Long: `Бот проводит то же интервью в чате: вопросы приходят сообщениями,
ответы кандидата пишутся текстом и разбираются по одному.`,
	RunE: runTelegram,
}

func runTelegram(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	tg := a.env.Telegram
	if tg.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN не установлен")
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

	opts := a.cfg.SessionOptions()
	opts.Saver = store
	opts.Metrics = a.metrics

	bot := telegram.NewWithBaseURL(fmt.Sprintf("%s/bot%s", strings.TrimRight(tg.APIBase, "/"), tg.Token))
	handler := telegram.NewHandler(bot, telegram.HandlerOptions{
		Generator:            gen,
		Session:              opts,
		DefaultQuestionCount: a.cfg.Interview.DefaultQuestionCount,
		Logger:               a.log,
	})
	defer handler.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("telegram bot started", "storage", a.env.Storage.Driver)
	err = bot.StartPolling(ctx, func(update telegram.Update) {
		if tg.Debug && update.Message != nil {
			a.log.Debug("telegram update", "update_id", update.UpdateID, "text", update.Message.Text)
		}
		handler.HandleUpdate(update)
	}, a.log)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ошибка бота: %w", err)
	}
	a.log.Info("telegram bot stopped")
	return nil
}
