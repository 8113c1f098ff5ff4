// Command ragtutor indexes a directory of text documents and answers
// questions against them, either one-shot or as an interactive session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chao-dotcom/RAGh-Tutor/agent"
	"github.com/chao-dotcom/RAGh-Tutor/app"
	"github.com/chao-dotcom/RAGh-Tutor/config"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
	"github.com/chao-dotcom/RAGh-Tutor/tools"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	fs := flag.NewFlagSet("ragtutor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	indexDir := fs.String("index", "", "directory of .txt/.md documents to index")
	query := fs.String("query", "", "run one query and exit")
	sessionID := fs.String("session", "", "session id (defaults to a fresh id)")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting ragtutor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer a.Shutdown()

	registerBuiltinTools(a.Tools)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *indexDir != "" {
		if err := indexDirectory(ctx, a, *indexDir); err != nil {
			logger.Fatal("indexing failed", zap.Error(err))
		}
	}

	session := *sessionID
	if session == "" {
		session = uuid.NewString()
	}

	if *query != "" {
		if err := answer(ctx, a, *query, session); err != nil {
			logger.Fatal("query failed", zap.Error(err))
		}
		return
	}

	runInteractive(ctx, a, session)
}

// registerBuiltinTools installs the tools every deployment gets. Real
// deployments register their own on top via app.Tools.
func registerBuiltinTools(registry *tools.Registry) {
	registry.RegisterFunc(
		"current_time",
		"Returns the current date and time in UTC.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, input tools.Input) (any, error) {
			return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	)
}

// indexDirectory ingests every .txt and .md file under dir, one chunk per
// blank-line-separated paragraph.
func indexDirectory(ctx context.Context, a *app.App, dir string) error {
	var chunks []rag.Chunk
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docID := uuid.NewString()
		for i, para := range splitParagraphs(string(data)) {
			chunks = append(chunks, rag.Chunk{
				ID:      uuid.NewString(),
				DocID:   docID,
				Content: para,
				Metadata: map[string]string{
					"source":      path,
					"filename":    d.Name(),
					"chunk_index": fmt.Sprintf("%d", i),
				},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.IndexChunks(ctx, chunks)
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paras = append(paras, block)
		}
	}
	return paras
}

// answer streams one query to stdout.
func answer(ctx context.Context, a *app.App, query, session string) error {
	for ev := range a.Agent.ExecuteStream(ctx, query, session) {
		switch ev.Type {
		case agent.EventContentDelta:
			fmt.Print(ev.Delta)
		case agent.EventToolCall:
			fmt.Printf("\n[tool: %s]\n", ev.Tool)
		case agent.EventCitations:
			if len(ev.Citations) > 0 {
				fmt.Println("\n\nSources:")
				for _, c := range ev.Citations {
					fmt.Printf("  [%s] %s\n", c.ChunkID, c.Filename)
				}
			}
		case agent.EventError:
			return fmt.Errorf("%s", ev.Error)
		case agent.EventDone:
			fmt.Println()
		}
	}
	return ctx.Err()
}

// runInteractive reads questions from stdin until EOF or interrupt.
func runInteractive(ctx context.Context, a *app.App, session string) {
	fmt.Printf("ragtutor interactive session %s (Ctrl-D to exit)\n", session)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if err := answer(ctx, a, query, session); err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
