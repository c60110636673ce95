package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"interview-coach/internal/storage"
)

var resultsJSON bool

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Просмотр сохраненных интервью",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список сохраненных интервью, новые первыми",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store storage.Store) error {
			return listResults(cmd.Context(), store, cmd.OutOrStdout())
		})
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Показать итоги одного интервью",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store storage.Store) error {
			return showResult(cmd.Context(), store, args[0], resultsJSON, cmd.OutOrStdout())
		})
	},
}

func init() {
	resultsShowCmd.Flags().BoolVar(&resultsJSON, "json", false, "Вывести запись целиком в JSON")
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
}

func withStore(cmd *cobra.Command, fn func(storage.Store) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func listResults(ctx context.Context, store storage.Store, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	list, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения результатов: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "Сохраненных интервью нет, начните с: interview-coach rehearse --role ...")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tДАТА\tРОЛЬ\tУРОВЕНЬ\tСТАДИЯ\tОЦЕНКА")
	for _, s := range list {
		score := "-"
		if s.Scored {
			score = fmt.Sprintf("%.1f", s.OverallScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.SavedAt.Local().Format("2006-01-02 15:04"), s.Role, s.Level, s.Stage, score)
	}
	return w.Flush()
}

func showResult(ctx context.Context, store storage.Store, id string, asJSON bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rec, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("ошибка загрузки интервью %s: %w", id, err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(out, "🆔 %s\n", rec.SessionID)
	fmt.Fprintf(out, "Роль: %s (%s)\n", rec.Config.Role, rec.Config.ExperienceLevel)
	fmt.Fprintf(out, "Сохранено: %s\n", rec.SavedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintln(out, "\nВопросы:")
	for i, q := range rec.Questions {
		fmt.Fprintf(out, "%d. %s\n", i+1, q)
	}
	printResult(out, rec.Result)
	if rec.Report != nil {
		printReport(out, *rec.Report)
	}
	return nil
}
