package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/soundlab/soundcoach/internal/catalog"
	"github.com/soundlab/soundcoach/internal/coach"
	"github.com/soundlab/soundcoach/internal/handler"
	appI18n "github.com/soundlab/soundcoach/internal/i18n"
	"github.com/soundlab/soundcoach/internal/llm"
	"github.com/soundlab/soundcoach/internal/model"
	"github.com/soundlab/soundcoach/internal/storage"
	"github.com/soundlab/soundcoach/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "soundcoach",
		Short: "Guided math-and-music learning coach powered by LLM feedback",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `soundcoach --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP learning server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "soundcoach.db", "SQLite database path")
	f.StringP("catalog", "c", "questions/signature_sound.json", "Path to the question catalog JSON file")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("llm-key", "", "API key for LLM (or set SOUNDCOACH_LLM_KEY)")
	f.String("llm-model", "gpt-4-turbo", "LLM model name")
	f.StringP("lang", "l", "en", "UI language (en, ko)")
	f.Int("min-answer-length", 10, "Minimum answer length in characters")
	f.String("teacher-password", "", "Initial teacher password (or set SOUNDCOACH_TEACHER_PASSWORD)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("uploads-dir", "uploads", "Local directory for attachments when MinIO is not configured")
	f.String("minio-endpoint", "", "MinIO/S3 endpoint for attachments (empty = local directory)")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.String("minio-bucket", "soundcoach-attachments", "MinIO bucket for attachments")
	f.Bool("minio-secure", false, "Use TLS for the MinIO connection")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all students' submission histories as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "soundcoach.db", "SQLite database path")
	f.StringP("catalog", "c", "questions/signature_sound.json", "Path to the question catalog JSON file")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("SOUNDCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("soundcoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/soundcoach")
	v.AddConfigPath("/etc/soundcoach")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedTeacherPassword(db, v.GetString("teacher-password")); err != nil {
		return fmt.Errorf("seed teacher password: %w", err)
	}
	if err := db.CleanupExpiredTeacherSessions(); err != nil {
		slog.Warn("cleanup expired teacher sessions", "error", err)
	}

	// Load the question catalog.
	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("loaded catalog", "path", v.GetString("catalog"),
		"questions", cat.Len(), "dimensions", len(cat.Dimensions()))

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create LLM client.
	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "model", v.GetString("llm-model"))

	// Attachment storage: MinIO when configured, local directory otherwise.
	var attachments storage.Provider
	if endpoint := v.GetString("minio-endpoint"); endpoint != "" {
		attachments, err = storage.NewMinio(context.Background(), endpoint,
			v.GetString("minio-access-key"), v.GetString("minio-secret-key"),
			v.GetString("minio-bucket"), v.GetBool("minio-secure"))
		if err != nil {
			return fmt.Errorf("create attachment storage: %w", err)
		}
		slog.Info("attachments stored in MinIO", "endpoint", endpoint, "bucket", v.GetString("minio-bucket"))
	} else {
		attachments = storage.NewLocal(v.GetString("uploads-dir"))
		slog.Info("attachments stored locally", "dir", v.GetString("uploads-dir"))
	}

	appCfg := model.AppConfig{
		Model:         v.GetString("llm-model"),
		MinAnswerLen:  v.GetInt("min-answer-length"),
		SecureCookies: v.GetBool("secure-cookies"),
		UploadsDir:    v.GetString("uploads-dir"),
	}

	c := coach.New(cat, llmClient, db, coach.Config{
		MinAnswerLen: appCfg.MinAnswerLen,
		Localize:     appI18n.Td,
	})
	sessions := coach.NewManager(c)
	h := handler.New(db, sessions, attachments, appCfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", appCfg.Model,
		"lang", lang,
		"questions", cat.Len(),
		"min_answer_length", appCfg.MinAnswerLen,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	taskTitle := ""
	if cat, err := catalog.Load(v.GetString("catalog")); err == nil {
		taskTitle = cat.Task().Title
	} else {
		slog.Warn("catalog unavailable, exporting without task title", "error", err)
	}

	export, err := db.ExportAll(taskTitle)
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
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

func seedTeacherPassword(db *store.Store, password string) error {
	existing, err := db.GetMetadata(handler.TeacherPasswordKey)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	if password == "" {
		return fmt.Errorf("teacher password is required: set --teacher-password flag or SOUNDCOACH_TEACHER_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}
	if err := db.SetMetadata(handler.TeacherPasswordKey, string(hash)); err != nil {
		return fmt.Errorf("store teacher password: %w", err)
	}

	slog.Info("seeded teacher password")
	return nil
}
