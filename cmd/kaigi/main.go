// Command kaigi is the desktop meeting assistant: it records meeting audio,
// transcribes it in near-real-time, and turns the transcript into live
// suggestions, rolling summaries, and a persisted session record.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaigi-app/kaigi/internal/config"
	"github.com/kaigi-app/kaigi/internal/credential"
	"github.com/kaigi-app/kaigi/internal/feedback"
	"github.com/kaigi-app/kaigi/internal/health"
	"github.com/kaigi-app/kaigi/internal/meeting"
	"github.com/kaigi-app/kaigi/internal/observe"
	"github.com/kaigi-app/kaigi/internal/resilience"
	"github.com/kaigi-app/kaigi/internal/suggest"
	"github.com/kaigi-app/kaigi/pkg/audio"
	paudio "github.com/kaigi-app/kaigi/pkg/audio/portaudio"
	"github.com/kaigi-app/kaigi/pkg/provider/llm"
	"github.com/kaigi-app/kaigi/pkg/provider/llm/anyllm"
	"github.com/kaigi-app/kaigi/pkg/provider/llm/openai"
	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	"github.com/kaigi-app/kaigi/pkg/provider/stt/whisperapi"
	"github.com/kaigi-app/kaigi/pkg/store"
	"github.com/kaigi-app/kaigi/pkg/store/postgres"
	"github.com/kaigi-app/kaigi/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "kaigi.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Subcommands that never touch audio.
	switch flag.Arg(0) {
	case "credential":
		return runCredential(flag.Args()[1:])
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kaigi: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kaigi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Log.Level))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "", "record":
		return runRecord(ctx, cfg, *configPath)
	case "sessions":
		return runSessions(ctx, cfg)
	case "show":
		return runShow(ctx, cfg, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "kaigi: unknown command %q (expected record, sessions, show, or credential)\n", flag.Arg(0))
		return 2
	}
}

// ── Record ────────────────────────────────────────────────────────────────────

// runRecord is the default mode: capture a meeting end to end and persist it.
func runRecord(ctx context.Context, cfg *config.Config, configPath string) int {
	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kaigi"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcriber, err := buildSTT(cfg, reg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	var model llm.Provider
	if cfg.Providers.LLM.Name != "" {
		model, err = buildLLM(cfg, reg)
		if err != nil {
			slog.Error("failed to build llm provider", "err", err)
			return 1
		}
	}

	// ── Session store ─────────────────────────────────────────────────────────
	var db store.Store
	var pg *postgres.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err = postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect session store", "err", err)
			return 1
		}
		defer pg.Close()
		db = pg
	}

	// ── Metrics + health endpoint ─────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		ep := health.NewEndpoint()
		if pg != nil {
			ep.Probe("session-store", pg.Ping)
		}
		startMetricsServer(cfg.Metrics.ListenAddr, ep)
	}

	// ── Audio capture ─────────────────────────────────────────────────────────
	var sourceOpts []paudio.Option
	if len(cfg.Audio.LoopbackKeywords) > 0 {
		sourceOpts = append(sourceOpts, paudio.WithLoopbackMatcher(audio.MatchAny(cfg.Audio.LoopbackKeywords...)))
	}
	source, err := paudio.New(sourceOpts...)
	if err != nil {
		slog.Error("failed to initialise audio", "err", err)
		return 1
	}
	defer source.Close()

	kinds := make([]audio.SourceKind, 0, 2)
	for _, src := range cfg.Audio.EnabledSources() {
		switch src {
		case config.SourceMicrophone:
			kinds = append(kinds, audio.SourceMicrophone)
		case config.SourceLoopback:
			kinds = append(kinds, audio.SourceLoopback)
		}
	}

	// ── Meeting context ───────────────────────────────────────────────────────
	meetingCtx, err := cfg.Meeting.Context()
	if err != nil {
		slog.Error("failed to load meeting materials", "err", err)
		return 1
	}

	// ── Session ───────────────────────────────────────────────────────────────
	ui := newConsole()

	sessionCfg := meeting.Config{
		Source:          source,
		Transcriber:     transcriber,
		LLM:             model,
		Store:           db,
		Meeting:         meetingCtx,
		Sources:         kinds,
		ChunkPeriod:     time.Duration(cfg.Recorder.ChunkSeconds) * time.Second,
		MinFlushBytes:   cfg.Recorder.MinFlushBytes,
		MinChunkBytes:   cfg.Transcription.MinChunkBytes,
		SummaryInterval: time.Duration(cfg.Summary.IntervalSeconds) * time.Second,
		OnEntry:         ui.printEntry,
		OnWarning:       ui.printWarning,
		OnSummary:       ui.printSummary,
	}

	if model != nil && !cfg.Suggest.Disabled {
		var rec feedback.Recorder
		if cfg.Feedback.Path != "" {
			rec = feedback.NewFileStore(cfg.Feedback.Path)
		}
		sessionCfg.SuggestionEngine = suggest.New(model, rec,
			suggest.WithMeetingContext(meetingCtx),
		)
		sessionCfg.OnSuggestions = ui.printSuggestions
	}

	fatal := make(chan error, 1)
	sessionCfg.OnFatal = func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	session, err := meeting.New(sessionCfg)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.MeetingChanged {
			slog.Info("meeting context changed; the new context applies to the next session")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	if err := session.Start(ctx); err != nil {
		slog.Error("failed to start recording", "err", err)
		return 1
	}
	fmt.Println("録音中 — commands: pause / resume / save <n> / reject <n> / status / stop")

	// ── Command loop ──────────────────────────────────────────────────────────
	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
		close(commands)
	}()

	aborted := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-fatal:
			fmt.Fprintf(os.Stderr, "kaigi: %v\n", err)
			aborted = true
			break loop
		case line, ok := <-commands:
			if !ok {
				break loop
			}
			if done := ui.handleCommand(session, line); done {
				break loop
			}
		}
	}

	// ── Finish ────────────────────────────────────────────────────────────────
	finishCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var rec *store.Record
	if aborted {
		rec, err = session.Abort(finishCtx)
	} else {
		rec, err = session.Stop(finishCtx)
	}
	if err != nil {
		slog.Error("failed to finish session", "err", err)
		return 1
	}

	ui.printRecord(rec)
	return 0
}

// startMetricsServer serves /metrics, /healthz, and /readyz in the background.
func startMetricsServer(addr string, ep *health.Endpoint) {
	if addr == "" {
		addr = "localhost:9464"
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	ep.Routes(mux)

	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics endpoint failed", "err", err)
		}
	}()
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with kaigi
// into reg. Each factory receives a config.ProviderEntry whose APIKey has
// already been resolved.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisperapi.Option
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
		}
		return whisperapi.New(entry.APIKey, opts...), nil
	})

	// openai goes through the native SDK; everything else through any-llm.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// credentialName returns the keychain entry name for a provider kind.
func credentialName(kind string) string {
	return kind + "-api-key"
}

// apiKeyEnvVar returns the environment variable consulted for a provider's
// API key when the keychain has no entry.
func apiKeyEnvVar(name string) string {
	switch name {
	case "whisper", "openai":
		return "OPENAI_API_KEY"
	case "ollama", "llamacpp", "llamafile":
		return "" // local servers need no key
	default:
		return strings.ToUpper(name) + "_API_KEY"
	}
}

func buildSTT(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	entry := cfg.Providers.STT
	if entry.Name == "" {
		entry.Name = "whisper"
	}
	key, err := credential.Resolve(credentialName("stt"), apiKeyEnvVar(entry.Name), entry.APIKey)
	if err != nil {
		return nil, err
	}
	entry.APIKey = key
	t, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, err
	}
	// A breaker keeps a flapping transcription API from stalling every chunk.
	return resilience.NewSTTFallback(t, entry.Name, resilience.FallbackConfig{}), nil
}

func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	entry := cfg.Providers.LLM
	envVar := apiKeyEnvVar(entry.Name)
	if envVar != "" {
		key, err := credential.Resolve(credentialName("llm"), envVar, entry.APIKey)
		if err != nil {
			return nil, err
		}
		entry.APIKey = key
	}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	return resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{}), nil
}

// ── Secondary commands ────────────────────────────────────────────────────────

// runCredential stores or removes API keys in the OS keychain.
// Usage: kaigi credential set stt|llm, kaigi credential delete stt|llm.
func runCredential(args []string) int {
	if len(args) != 2 || (args[1] != "stt" && args[1] != "llm") {
		fmt.Fprintln(os.Stderr, "usage: kaigi credential set|delete stt|llm")
		return 2
	}
	name := credentialName(args[1])

	switch args[0] {
	case "set":
		fmt.Printf("API key for %s: ", args[1])
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr, "kaigi: no input")
			return 1
		}
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			fmt.Fprintln(os.Stderr, "kaigi: empty API key")
			return 1
		}
		if err := credential.Set(name, key); err != nil {
			fmt.Fprintf(os.Stderr, "kaigi: %v\n", err)
			return 1
		}
		fmt.Println("stored in keychain")
		return 0
	case "delete":
		if err := credential.Delete(name); err != nil {
			fmt.Fprintf(os.Stderr, "kaigi: %v\n", err)
			return 1
		}
		fmt.Println("removed from keychain")
		return 0
	default:
		fmt.Fprintln(os.Stderr, "usage: kaigi credential set|delete stt|llm")
		return 2
	}
}

// runSessions lists persisted sessions, newest first.
func runSessions(ctx context.Context, cfg *config.Config) int {
	db, ok := openStore(ctx, cfg)
	if !ok {
		return 1
	}
	defer db.Close()

	entries, err := db.List(ctx)
	if err != nil {
		slog.Error("failed to list sessions", "err", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("no sessions recorded yet")
		return 0
	}
	for _, e := range entries {
		flags := ""
		if e.HasSummary {
			flags += " [summary]"
		}
		if e.HasMaterials {
			flags += " [materials]"
		}
		fmt.Printf("%s  %s  %-9s  %3d entries  %s%s\n",
			e.ID, e.StartedAt.Format("2006-01-02 15:04"), e.Status,
			e.TranscriptionCount, e.Title, flags)
	}
	return 0
}

// runShow prints one persisted session in full.
func runShow(ctx context.Context, cfg *config.Config, id string) int {
	if id == "" {
		fmt.Fprintln(os.Stderr, "usage: kaigi show <session-id>")
		return 2
	}
	db, ok := openStore(ctx, cfg)
	if !ok {
		return 1
	}
	defer db.Close()

	rec, err := db.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "kaigi: session %q not found\n", id)
		} else {
			slog.Error("failed to load session", "err", err)
		}
		return 1
	}

	newConsole().printRecord(&rec)
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, bool) {
	if cfg.Store.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "kaigi: store.postgres_dsn is not configured")
		return nil, false
	}
	db, err := postgres.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect session store", "err", err)
		return nil, false
	}
	return db, true
}

// ── Console UI ────────────────────────────────────────────────────────────────

// console renders session events to stdout and maps suggestion list numbers
// back to suggestion IDs for save/reject commands.
type console struct {
	mu     sync.Mutex
	active []types.Suggestion
}

func newConsole() *console {
	return &console{}
}

func (c *console) printEntry(e types.TranscriptEntry) {
	fmt.Printf("[%s] %s\n", e.Timestamp.Format("15:04:05"), e.Text)
}

func (c *console) printWarning(msg string) {
	fmt.Printf("⚠ %s\n", msg)
}

func (c *console) printSuggestions(suggestions []types.Suggestion) {
	c.mu.Lock()
	c.active = suggestions
	c.mu.Unlock()

	fmt.Println("── suggestions ──")
	for i, s := range suggestions {
		fmt.Printf("  %d. [%s] %s\n", i+1, s.Kind, s.Text)
	}
}

func (c *console) printSummary(s types.Summary) {
	fmt.Printf("── summary (%s) ──\n%s\n", s.GeneratedAt.Format("15:04:05"), s.Text)
}

// handleCommand executes one line from the command loop. It returns true when
// the session should stop.
func (c *console) handleCommand(session *meeting.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "stop", "quit", "exit":
		return true
	case "pause":
		if err := session.Pause(); err != nil {
			fmt.Printf("pause: %v\n", err)
		} else {
			fmt.Println("paused")
		}
	case "resume":
		if err := session.Resume(); err != nil {
			fmt.Printf("resume: %v\n", err)
		} else {
			fmt.Println("recording")
		}
	case "status":
		fmt.Printf("recorded %s, %d transcript entries\n",
			session.Elapsed().Round(time.Second), len(session.Transcript()))
	case "save", "reject":
		id, ok := c.suggestionID(fields)
		if !ok {
			fmt.Printf("usage: %s <number>\n", fields[0])
			return false
		}
		var err error
		if fields[0] == "save" {
			err = session.SaveSuggestion(id)
		} else {
			err = session.RejectSuggestion(id)
		}
		if err != nil {
			fmt.Printf("%s: %v\n", fields[0], err)
		}
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}

// suggestionID maps a 1-based list number from the latest printed suggestion
// set to its ID.
func (c *console) suggestionID(fields []string) (string, bool) {
	if len(fields) != 2 {
		return "", false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.active) {
		return "", false
	}
	return c.active[n-1].ID, true
}

// printRecord renders a finished or stored session.
func (c *console) printRecord(rec *store.Record) {
	fmt.Printf("\n%s (%s)\n", rec.Title, rec.Status)
	fmt.Printf("recorded %s, %d transcript entries\n",
		rec.Duration.Round(time.Second), len(rec.Transcriptions))
	if rec.Summary != nil {
		fmt.Printf("\n── summary ──\n%s\n", rec.Summary.Text)
	}
	if len(rec.Decisions) > 0 {
		fmt.Println("\n── decisions ──")
		for _, d := range rec.Decisions {
			fmt.Printf("  • %s\n", d.Text)
		}
	}
	if len(rec.ActionItems) > 0 {
		fmt.Println("\n── action items ──")
		for _, a := range rec.ActionItems {
			line := a.Text
			if a.Assignee != "" {
				line += " (" + a.Assignee
				if a.DueDate != "" {
					line += ", " + a.DueDate
				}
				line += ")"
			} else if a.DueDate != "" {
				line += " (" + a.DueDate + ")"
			}
			fmt.Printf("  • %s\n", line)
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
