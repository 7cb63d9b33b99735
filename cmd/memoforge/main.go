// ABOUTME: CLI entrypoint for the memoforge engine with run and serve modes.
// ABOUTME: Wires the parser pool, retrieval store, agents, and HTTP server together.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/spectra-research/memoforge/config"
	"github.com/spectra-research/memoforge/docparse"
	"github.com/spectra-research/memoforge/memotype"
	"github.com/spectra-research/memoforge/retrieval"
	"github.com/spectra-research/memoforge/server"
	"github.com/spectra-research/memoforge/workflow"
)

var version = "dev"

func main() {
	loadDotEnv(".env")

	if len(os.Args) < 2 {
		printHelp(os.Stderr, version)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runMemo(os.Args[2:]))
	case "serve":
		os.Exit(serve(os.Args[2:]))
	case "types":
		for _, id := range memotype.DefaultRegistry().Types() {
			fmt.Println(id)
		}
		os.Exit(0)
	case "version", "-version", "--version":
		fmt.Printf("memoforge %s\n", version)
		os.Exit(0)
	case "help", "-h", "-help", "--help":
		printHelp(os.Stdout, version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printHelp(os.Stderr, version)
		os.Exit(2)
	}
}

// runMemo executes one memo run over local files and prints the result JSON.
func runMemo(args []string) int {
	fs := flag.NewFlagSet("memoforge run", flag.ContinueOnError)
	memoType := fs.String("type", memotype.ShortPrimary, "Memo type to produce (see 'memoforge types')")
	configPath := fs.String("config", "", "Path to YAML config file")
	verbose := fs.Bool("verbose", false, "Print workflow events to stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "error: no input files")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if cfg.OpenAI.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: no API key; set OPENAI_API_KEY or MEMOFORGE_OPENAI_API_KEY")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	text, code := parseInputs(ctx, cfg, fs.Args())
	if code != 0 {
		return code
	}

	var events workflow.EventHandler
	if *verbose {
		events = verboseEventHandler
	}

	engine := server.NewEngine(
		memotype.DefaultRegistry(),
		server.NewOpenAIFactory(cfg.OpenAI),
		retrieval.NewMemoryStore(),
		cfg,
	)
	out, err := engine.Run(ctx, server.RunRequest{
		MemoType:  *memoType,
		Text:      text,
		Namespace: uuid.NewString(),
	}, events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(out.Incomplete) > 0 {
		fmt.Fprintf(os.Stderr, "warning: incomplete sections: %s\n", strings.Join(out.Incomplete, ", "))
	}
	return 0
}

// parseInputs reads every input file through the bounded parser pool and
// joins the extracted texts. A SQLite cache is used when configured.
func parseInputs(ctx context.Context, cfg *config.Config, paths []string) (string, int) {
	var cache docparse.Cache
	if cfg.Parser.CachePath != "" {
		sqlCache, err := docparse.OpenSqlite(cfg.Parser.CachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: parse cache unavailable: %v\n", err)
		} else {
			defer func() { _ = sqlCache.Close() }()
			cache = sqlCache
		}
	}
	if cache == nil {
		cache = docparse.NewMemoryCache()
	}

	pool, err := docparse.NewPool(docparse.PoolConfig{
		Parser:  textParser{},
		Cache:   cache,
		Workers: cfg.Parser.Workers,
		TTL:     docparse.DefaultTTL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return "", 1
	}

	docs := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return "", 1
		}
		docs[i] = data
	}

	results := pool.ParseAll(ctx, docs)
	var parts []string
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", paths[r.Index], r.Err)
			failed++
			continue
		}
		parts = append(parts, r.Doc.Text)
	}
	if failed == len(paths) {
		fmt.Fprintln(os.Stderr, "error: no input file could be parsed")
		return "", 1
	}
	return strings.Join(parts, "\n\n"), 0
}

// serve starts the HTTP API.
func serve(args []string) int {
	fs := flag.NewFlagSet("memoforge serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	bind := fs.String("bind", "", "Listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if cfg.OpenAI.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: no API key; set OPENAI_API_KEY or MEMOFORGE_OPENAI_API_KEY")
		return 1
	}

	engine := server.NewEngine(
		memotype.DefaultRegistry(),
		server.NewOpenAIFactory(cfg.OpenAI),
		retrieval.NewMemoryStore(),
		cfg,
	)
	srv := &http.Server{Addr: cfg.Server.Bind, Handler: server.NewServer(engine)}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(os.Stderr, "memoforge %s listening on %s\n", version, cfg.Server.Bind)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// verboseEventHandler prints workflow events to stderr.
func verboseEventHandler(evt workflow.Event) {
	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", evt.Timestamp.Format("15:04:05"), evt.Type, evt.Step)
}

// textParser treats input bytes as UTF-8 text. Binary files are rejected as
// format errors rather than fed to the model as garbage.
type textParser struct{}

func (textParser) Parse(ctx context.Context, data []byte) (*docparse.Document, error) {
	if !utf8.Valid(data) {
		return nil, docparse.NewFormatError("input is not UTF-8 text", nil)
	}
	text := string(data)
	return &docparse.Document{
		Text:   text,
		Pages:  1 + strings.Count(text, "\f"),
		Length: len(text),
	}, nil
}
