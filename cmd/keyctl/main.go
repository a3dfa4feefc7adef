// Package main - keyctl, офлайн-утилита управления ключами доступа.
//
// Работает напрямую с JSON-хранилищем бота, минуя Telegram. Нужна, чтобы
// выпустить самый первый ключ до запуска бота, посмотреть хранилище или
// отозвать доступ, пока бот лежит.
//
// Команды:
//
//	keyctl issue  [-n N]                     выпустить N ключей
//	keyctl list   [-filter all|unused|used]  список ключей
//	keyctl users                             авторизованные пользователи
//	keyctl revoke -key XXXX-XXXX-XXXX        удалить ключ и отозвать доступ
//	keyctl stats                             счётчики хранилища
//
// Путь к хранилищу берётся из флага -data, переменной DATA_FILE или
// data.json по умолчанию. Бот перечитывает файл не атомарно с keyctl,
// поэтому выпускать ключи на живом боте безопасно, а вот редактировать
// файл руками - нет.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/persistence/jsonfile"
)

const timeLayout = "02.01.2006 15:04"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "keyctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("не указана команда")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "issue":
		return runIssue(rest)
	case "list":
		return runList(rest)
	case "users":
		return runUsers(rest)
	case "revoke":
		return runRevoke(rest)
	case "stats":
		return runStats(rest)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("неизвестная команда %q", cmd)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBCOMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func runIssue(args []string) error {
	fs, dataFile := newFlagSet("issue")
	n := fs.Int("n", 1, "сколько ключей выпустить")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 1 || *n > 50 {
		return errors.New("число ключей должно быть от 1 до 50")
	}

	repo, err := openRepo(*dataFile)
	if err != nil {
		return err
	}

	issue := command.NewIssueKeyHandler(repo, nil, quietLogger())

	ctx := context.Background()
	for i := 0; i < *n; i++ {
		result, err := issue.Handle(ctx, command.IssueKeyCommand{})
		if err != nil {
			return fmt.Errorf("выпуск ключа: %w", err)
		}
		// Только токен, по одному на строку: вывод удобно передавать дальше.
		fmt.Println(result.Token.String())
	}
	return nil
}

func runList(args []string) error {
	fs, dataFile := newFlagSet("list")
	filter := fs.String("filter", "all", "какие ключи показать: all, unused или used")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var keyFilter query.KeyFilter
	switch *filter {
	case "all":
		keyFilter = query.KeysAll
	case "unused":
		keyFilter = query.KeysUnused
	case "used":
		keyFilter = query.KeysUsed
	default:
		return fmt.Errorf("неизвестный фильтр %q", *filter)
	}

	repo, err := openRepo(*dataFile)
	if err != nil {
		return err
	}

	result, err := query.NewListKeysHandler(repo).Handle(context.Background(), query.ListKeysQuery{Filter: keyFilter})
	if err != nil {
		return err
	}

	if len(result.Keys) == 0 {
		fmt.Println("ключей нет")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ТОКЕН\tСТАТУС\tСОЗДАН\tАКТИВИРОВАН")
	for _, k := range result.Keys {
		status := "не использован"
		activated := "-"
		if k.IsUsed {
			status = "использован"
			activated = fmt.Sprintf("%s (%d)", k.ActivatedByName, k.ActivatedBy)
			if k.ActivatedAt != nil {
				activated += " " + k.ActivatedAt.Format(timeLayout)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.Token, status, k.CreatedAt.Format(timeLayout), activated)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nвсего: %d, не использовано: %d, использовано: %d\n",
		result.TotalCount, result.UnusedCount, result.UsedCount)
	return nil
}

func runUsers(args []string) error {
	fs, dataFile := newFlagSet("users")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, err := openRepo(*dataFile)
	if err != nil {
		return err
	}

	result, err := query.NewListUsersHandler(repo).Handle(context.Background(), query.ListUsersQuery{})
	if err != nil {
		return err
	}

	if len(result.Users) == 0 {
		fmt.Println("авторизованных пользователей нет")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TELEGRAM ID\tИМЯ\tКЛЮЧ\tАКТИВИРОВАН")
	for _, u := range result.Users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.UserID, u.Name, u.KeyUsed, u.ActivatedAt.Format(timeLayout))
	}
	return w.Flush()
}

func runRevoke(args []string) error {
	fs, dataFile := newFlagSet("revoke")
	key := fs.String("key", "", "токен ключа, который нужно удалить")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("нужен флаг -key с токеном")
	}

	repo, err := openRepo(*dataFile)
	if err != nil {
		return err
	}

	revoke := command.NewRevokeKeyHandler(repo, nil, quietLogger())
	result, err := revoke.Handle(context.Background(), command.RevokeKeyCommand{RawToken: *key})
	if err != nil {
		return fmt.Errorf("отзыв ключа: %w", err)
	}

	if !result.Deleted {
		fmt.Printf("ключ %s не найден\n", result.Token)
		return nil
	}

	fmt.Printf("ключ %s удалён\n", result.Token)
	if result.RevokedUser != nil {
		fmt.Printf("доступ пользователя %d отозван\n", result.RevokedUser.Int64())
	}
	return nil
}

func runStats(args []string) error {
	fs, dataFile := newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, err := openRepo(*dataFile)
	if err != nil {
		return err
	}

	result, err := query.NewGetAccessStatsHandler(repo).Handle(context.Background(), query.GetAccessStatsQuery{})
	if err != nil {
		return err
	}

	fmt.Printf("активных ключей:  %d\n", result.UnusedKeys)
	fmt.Printf("использовано:     %d\n", result.UsedKeys)
	fmt.Printf("пользователей:    %d\n", result.Users)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newFlagSet создаёт FlagSet подкоманды с общим флагом -data.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dataFile := fs.String("data", defaultDataFile(), "путь к JSON-файлу хранилища")
	return fs, dataFile
}

func defaultDataFile() string {
	if v := os.Getenv("DATA_FILE"); v != "" {
		return v
	}
	return "data.json"
}

// openRepo открывает хранилище без супер-пользователя: CLI не проверяет
// авторизацию, а работает с ключами напрямую.
func openRepo(path string) (*jsonfile.Repository, error) {
	return jsonfile.New(jsonfile.Params{
		Path:   path,
		Logger: quietLogger(),
	})
}

// quietLogger пишет в stderr только предупреждения, чтобы не засорять
// вывод таблиц.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func printUsage() {
	fmt.Fprint(os.Stderr, `keyctl - управление ключами доступа бота

использование:
  keyctl issue  [-n N]                     выпустить N ключей (по умолчанию 1)
  keyctl list   [-filter all|unused|used]  список ключей
  keyctl users                             авторизованные пользователи
  keyctl revoke -key XXXX-XXXX-XXXX        удалить ключ и отозвать доступ
  keyctl stats                             счётчики хранилища

общие флаги:
  -data путь    JSON-файл хранилища (иначе $DATA_FILE, иначе data.json)
`)
}
