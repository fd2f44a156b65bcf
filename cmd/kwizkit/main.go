package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/kwizkit/internal/handler"
	appI18n "github.com/pavelanni/kwizkit/internal/i18n"
	"github.com/pavelanni/kwizkit/internal/llm"
	"github.com/pavelanni/kwizkit/internal/llm/prompts"
	"github.com/pavelanni/kwizkit/internal/model"
	"github.com/pavelanni/kwizkit/internal/reconcile"
	"github.com/pavelanni/kwizkit/internal/store"
	"github.com/pavelanni/kwizkit/internal/tablesession"
)

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kwizkit",
		Short: "Student tables and tests for teaching teams",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd(), managerCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `kwizkit --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "kwizkit.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM (question generation is disabled when empty)")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.Int("max-generate", 20, "Maximum questions per generation request")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /kwizkit)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Generation prompt variant (strict, standard, lenient)")
	f.String("seed-manager", "", "Account id of a manager created when none exist")
	addCommonFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a table as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("table-id", "", "Table to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(cmd)

	_ = cmd.MarkFlagRequired("table-id")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-questions [files...]",
		Short: "Import question banks into a test",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("test", "", "Test id or name; a missing name creates the test (required)")
	addCommonFlags(cmd)

	_ = cmd.MarkFlagRequired("test")
	return cmd
}

func managerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Manage teacher accounts",
	}
	add := &cobra.Command{
		Use:   "add <account-id>",
		Short: "Register a manager account",
		Args:  cobra.ExactArgs(1),
		RunE:  runManagerAdd,
	}
	f := add.Flags()
	f.String("name", "", "Display name (defaults to the account id)")
	f.String("email", "", "Contact email")
	addCommonFlags(add)

	list := &cobra.Command{
		Use:   "list",
		Short: "List manager accounts",
		RunE:  runManagerList,
	}
	addCommonFlags(list)

	cmd.AddCommand(add, list)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("KWIZKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("kwizkit")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/kwizkit")
	v.AddConfigPath("/etc/kwizkit")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedManager(ctx, db, v.GetString("seed-manager")); err != nil {
		return fmt.Errorf("seed manager: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	// Generation stays disabled without credentials; the rest of the API works.
	var gen handler.Generator
	if key := v.GetString("llm-key"); key != "" {
		gen = llm.New(v.GetString("llm-url"), key, v.GetString("llm-model"), prompts.PromptVariant(promptVariant))
		slog.Info("question generation enabled", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	} else {
		slog.Warn("no LLM key configured, question generation disabled")
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.Config{
		BasePath:      basePath,
		Lang:          lang,
		MaxGenerate:   v.GetInt("max-generate"),
		PromptVariant: promptVariant,
	}

	engine := reconcile.New(db)
	h, err := handler.New(db, engine, tablesession.NewRegistry(engine), gen, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"max_generate", cfg.MaxGenerate,
		"prompt_variant", promptVariant,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportTable(cmd.Context(), v.GetString("table-id"))
	if err != nil {
		return fmt.Errorf("export table: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	test, err := resolveTest(ctx, db, v.GetString("test"))
	if err != nil {
		return err
	}

	for _, path := range args {
		if err := importFile(ctx, db, test.ID, path); err != nil {
			return err
		}
	}
	return nil
}

// resolveTest finds a test by id or name, creating it when no test matches.
func resolveTest(ctx context.Context, db *store.Store, ref string) (*model.Test, error) {
	t, err := db.GetTest(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("look up test %q: %w", ref, err)
	}
	tests, err := db.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		if t.Name == ref || t.Slug == ref {
			return &t, nil
		}
	}
	t, err = db.CreateTest(ctx, model.Test{Name: ref})
	if err != nil {
		return nil, fmt.Errorf("create test %q: %w", ref, err)
	}
	slog.Info("created test", "id", t.ID, "name", t.Name)
	return t, nil
}

func importFile(ctx context.Context, db *store.Store, testID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	key := testID + "/" + filepath.Base(path)
	storedHash, err := db.GetImportedFileHash(ctx, key)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		return nil
	}

	var bank []model.QuestionImport
	if err := json.Unmarshal(data, &bank); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	questions := make([]model.Question, 0, len(bank))
	for i, qi := range bank {
		q := qi.ToQuestion()
		q.TestID = testID
		if err := model.ValidateStruct(q); err != nil {
			return fmt.Errorf("question %d in %s: %w", i+1, path, err)
		}
		questions = append(questions, q)
	}

	if _, err := db.ImportQuestionBank(ctx, key, hash, questions); err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "test_id", testID, "count", len(bank))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runManagerAdd(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	name := v.GetString("name")
	if name == "" {
		name = args[0]
	}
	m, err := db.CreateManager(cmd.Context(), model.Manager{
		AccountID:   args[0],
		DisplayName: name,
		Email:       v.GetString("email"),
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), m.ID)
	return nil
}

func runManagerList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	managers, err := db.ListManagers(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, m := range managers {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", m.ID, m.AccountID, m.DisplayName, m.Email)
	}
	return nil
}

func seedManager(ctx context.Context, db *store.Store, accountID string) error {
	if accountID == "" {
		return nil
	}
	count, err := db.ManagerCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if _, err := db.CreateManager(ctx, model.Manager{AccountID: accountID, DisplayName: accountID}); err != nil {
		return fmt.Errorf("create manager %s: %w", accountID, err)
	}
	slog.Info("seeded manager", "account_id", accountID)
	return nil
}
