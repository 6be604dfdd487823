package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"formagent/internal/chunker"
	"formagent/internal/config"
	"formagent/internal/domain"
	"formagent/internal/embedding"
	"formagent/internal/httpapi"
	"formagent/internal/llm"
	"formagent/internal/loader"
	"formagent/internal/observability"
	"formagent/internal/prompt"
	"formagent/internal/retrieval"
	"formagent/internal/service"
	"formagent/internal/tui"
	"formagent/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath  string
		serve    bool
		watchDir string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/formagent/config.yaml if not provided)")
	flag.BoolVar(&serve, "serve", false, "Serve the HTTP API instead of the terminal UI")
	flag.StringVar(&watchDir, "watch", "", "Directory to watch for new or changed documents")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 && watchDir != "" {
		inputs = []string{watchDir}
	}
	if len(inputs) == 0 {
		fmt.Println("Usage: formagent [--config=config.yaml] [--serve] [--watch=dir] file.pdf|dir [...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFile := cfg.Log.File
	if !serve && logFile == "" {
		// keep log lines out of the terminal UI
		logFile = filepath.Join(os.TempDir(), "formagent.log")
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, logFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}

	ld := loader.New(cfg.Loader.UnidocLicenseEnv, logger)
	pages, err := ld.LoadPaths(inputs)
	if err != nil {
		log.Fatalf("failed to load documents: %v", err)
	}
	report, err := engine.Ingest(ctx, pages)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	for _, p := range report.Skipped {
		fmt.Fprintf(os.Stderr, "skipped unreadable page %d of %s\n", p.PageNumber, p.SourceID)
	}

	if watchDir != "" {
		w, err := ld.Watch(watchDir)
		if err != nil {
			log.Fatalf("failed to watch %s: %v", watchDir, err)
		}
		go func() {
			_ = w.Run(ctx, func(ctx context.Context, source string, pages []domain.Page) {
				if pages == nil {
					engine.Remove(source)
					return
				}
				if _, err := engine.Ingest(ctx, pages); err != nil {
					logger.Error("re-ingest failed", zap.String("source", source), zap.Error(err))
				}
			})
		}()
	}

	if serve {
		if err := runServer(ctx, cfg, engine, logger); err != nil {
			log.Fatalf("server: %v", err)
		}
		return
	}

	overview := fmt.Sprintf("%d documents, %d passages. %s", report.Documents, report.Passages, report.Overview)
	if _, err := tea.NewProgram(tui.New(ctx, engine, overview), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Fatal(err)
	}
}

func buildEngine(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*service.Engine, error) {
	ch, err := chunker.NewRecursive(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, logger)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	gen, err := llm.New(ctx, cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	index := retrieval.NewIndex(emb, memory.NewStorage(), logger)
	logger.Info("engine ready",
		zap.String("embedder", emb.Name()),
		zap.String("generator", gen.Name()),
		zap.Int("ask_k", cfg.Retrieval.AskK),
		zap.Int("analyze_k", cfg.Retrieval.AnalyzeK))
	return service.New(ch, index, gen, prompt.New(cfg.Prompt.ContextBudget), service.Options{
		AskK:               cfg.Retrieval.AskK,
		AnalyzeK:           cfg.Retrieval.AnalyzeK,
		SummarySample:      cfg.Summary.Sample,
		SummaryPerDocument: cfg.Summary.PerDocument,
		OverviewSentences:  cfg.Summary.OverviewSentences,
		GenerateTimeout:    time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
	}, logger), nil
}

func runServer(ctx context.Context, cfg *config.AppConfig, engine *service.Engine, logger *zap.Logger) error {
	timeout := time.Duration(cfg.Generator.TimeoutSecs)*time.Second + 10*time.Second
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewHandler(engine, logger).Routes(timeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
