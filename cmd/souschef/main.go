// SousChef — a voice-guided cooking companion.
//
// Usage:
//
//	souschef [-recipe pasta-aglio-olio] [-capture deepgram] [-verbose]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/souschef/internal/conversation"
	"github.com/hammamikhairi/souschef/internal/dialogue"
	"github.com/hammamikhairi/souschef/internal/display"
	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/engine"
	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/recipe"
	"github.com/hammamikhairi/souschef/internal/speech"
	"github.com/hammamikhairi/souschef/internal/storage"
)

func main() {
	_ = godotenv.Load()

	backendURL := flag.String("backend-url", envOr("KITCHEN_BASE_URL", "http://localhost:8000"), "base URL of the kitchen service")
	recipeID := flag.String("recipe", "", "recipe id to start cooking immediately")
	resume := flag.Bool("resume", false, "resume the stored session for -recipe instead of starting over")
	recipesDir := flag.String("recipes-dir", "", "read recipes from a local YAML directory instead of the service")
	captureMode := flag.String("capture", "auto", "voice input backend: auto, deepgram, whisper, or off")
	whisperBin := flag.String("whisper-bin", envOr("SOUSCHEF_WHISPER_BIN", "whisper-cli"), "path to the whisper-cpp CLI binary")
	whisperModel := flag.String("whisper-model", envOr("SOUSCHEF_WHISPER_MODEL", "bin/ggml-small.bin"), "path to the Whisper GGML model file")
	listenWindow := flag.Duration("listen-window", 15*time.Second, "how long one listening turn stays open")
	dbPath := flag.String("db", ".souschef/sessions.db", "SQLite session store path (use \"off\" for in-memory)")
	timeout := flag.Duration("timeout", 30*time.Second, "kitchen service request timeout")
	tick := flag.Duration("tick", time.Second, "countdown tick interval (shorter fast-forwards timers against the stub service)")
	noSpeech := flag.Bool("no-speech", false, "disable narration playback and voice input")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".souschef-logs/souschef.log", "file to write logs to (use \"stderr\" to log to console)")
	flag.Parse()

	// Configure logger.
	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Direct logs to a file by default so the conversation stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Redirect Go's default log package (used by third-party libs like
	// the whisper transcriber) to the same output so it doesn't spam
	// the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	// Set up context — cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire dependencies. The UI polls the controller through a closure
	// so it can be created before the controller exists.
	var ctrl *engine.Controller
	ui := display.NewUI(func() *domain.Session {
		if ctrl == nil {
			return nil
		}
		return ctrl.Snapshot()
	})
	notifier := conversation.NewCLINotifier(log.Named("notify"), ui.Printf)

	dlg := dialogue.NewClient(*backendURL, log.Named("dialogue"),
		dialogue.WithHTTPTimeout(*timeout))

	var recipes domain.RecipeSource
	if *recipesDir != "" {
		fs, err := recipe.NewFileSource(*recipesDir, log.Named("recipes"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading recipes from %s: %v\n", *recipesDir, err)
			os.Exit(1)
		}
		recipes = fs
	} else {
		recipes = recipe.NewHTTPSource(*backendURL, log.Named("recipes"))
	}

	var store domain.SessionStore
	var closeStore func()
	if *dbPath == "" || *dbPath == "off" {
		store = storage.NewMemoryStore(log.Named("store"))
	} else {
		s, err := storage.OpenSQLite(*dbPath, log.Named("store"))
		if err != nil {
			log.Error("session store unavailable, falling back to memory: %v", err)
			store = storage.NewMemoryStore(log.Named("store"))
		} else {
			store = s
			closeStore = func() { s.Close() }
		}
	}

	// Narration output. Without a device (or with -no-speech) turns
	// still apply, just silently.
	var playback domain.Playback
	var playbackMgr *speech.PlaybackManager
	var noopPlayback *speech.NoopPlayback
	if *noSpeech {
		noopPlayback = speech.NewNoopPlayback(log.Named("playback"))
		playback = noopPlayback
	} else {
		player, err := speech.NewPlayer(log.Named("playback"))
		if err != nil {
			log.Error("audio device unavailable, narration disabled: %v", err)
			noopPlayback = speech.NewNoopPlayback(log.Named("playback"))
			playback = noopPlayback
		} else {
			playbackMgr = speech.NewPlaybackManager(player, log.Named("playback"))
			playback = playbackMgr
		}
	}

	// Voice input. A missing key, binary, or device degrades to typed
	// input; it never blocks the session.
	var capture domain.Capture
	var captureMgr *speech.CaptureManager
	var closeBackend func()
	if !*noSpeech && *captureMode != "off" {
		backend, closeFn, err := buildCaptureBackend(*captureMode, *whisperBin, *whisperModel, *listenWindow, log)
		if err != nil {
			if errors.Is(err, domain.ErrCaptureUnavailable) {
				log.Warn("voice input disabled: %v", err)
			} else {
				log.Error("voice input disabled: %v", err)
			}
		} else {
			captureMgr = speech.NewCaptureManager(backend, playback, notifier, log.Named("capture"))
			capture = captureMgr
			closeBackend = closeFn
		}
	}

	opts := []engine.Option{
		engine.WithPlayback(playback),
		engine.WithStore(store),
		engine.WithCues(speech.WarningCue(), speech.CompletionCue()),
	}
	if capture != nil {
		opts = append(opts, engine.WithCapture(capture))
	}
	if *tick > 0 {
		opts = append(opts, engine.WithTimerTick(*tick))
	}
	ctrl = engine.New(dlg, recipes, notifier, log.Named("engine"), opts...)

	if playbackMgr != nil {
		if capture != nil {
			playbackMgr.BindCapture(capture)
		}
		playbackMgr.SetOnEnded(ctrl.OnPlaybackEnded)
	}
	if noopPlayback != nil {
		noopPlayback.SetOnEnded(ctrl.OnPlaybackEnded)
	}

	// Render assistant turns into the scrollback as they land.
	ctrl.SetOnMessage(func(msg domain.Message) {
		if msg.Sender != domain.SenderAssistant {
			// Typed input is echoed by the prompt, voice by PrintVoice.
			return
		}
		ui.PrintChat(msg.Text)
		if t := msg.Timer; t != nil {
			ui.PrintHint(fmt.Sprintf("Timer: %s — %s", t.Label, formatSeconds(t.Total)))
			for _, task := range t.ParallelTasks {
				ui.PrintHint("meanwhile: " + task.Instruction)
			}
		}
		for i, sub := range msg.Substitutions {
			line := fmt.Sprintf("[%d] %s → %s", i+1, sub.Original, sub.Substitute)
			if sub.Amount != "" {
				line += fmt.Sprintf(" (%s %s)", sub.Amount, sub.Unit)
			}
			ui.PrintInstruction(line)
		}
	})

	// Periodic snapshots keep the stored countdown mirror fresh between
	// turns.
	saver := storage.NewAutosaver(store, func() *domain.Session { return ctrl.Snapshot() }, log.Named("autosave"))
	saverDone := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(saverDone)
	}()

	app := &cliApp{
		ctrl:     ctrl,
		recipes:  recipes,
		capture:  captureMgr,
		ui:       ui,
		log:      log,
		recipeID: *recipeID,
		resume:   *resume,
	}

	fmt.Println(display.RenderBanner())
	if capture != nil {
		fmt.Println(display.BannerStyle.Render("  Voice ON — just talk once the chef stops, or type."))
	} else {
		fmt.Println(display.BannerStyle.Render("  Type to talk to the chef. 'help' lists commands."))
	}
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal — blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()

	// Let the autosaver flush its final snapshot before the session is
	// torn down.
	<-saverDone
	ctrl.Reset()
	if closeBackend != nil {
		closeBackend()
	}
	if closeStore != nil {
		closeStore()
	}
}

// buildCaptureBackend picks the speech-to-text backend for the given
// mode. "auto" prefers Deepgram when an API key is configured and falls
// back to local whisper-cpp.
func buildCaptureBackend(mode, whisperBin, whisperModel string, window time.Duration, log *logger.Logger) (speech.Backend, func(), error) {
	newDeepgram := func() (speech.Backend, func(), error) {
		b, err := speech.NewDeepgramBackend(log.Named("deepgram"),
			speech.WithDeepgramListenWindow(window))
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	newWhisper := func() (speech.Backend, func(), error) {
		b, err := speech.NewWhisperBackend(whisperBin, whisperModel, log.Named("whisper"),
			speech.WithListenWindow(window))
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	}

	switch mode {
	case "deepgram":
		return newDeepgram()
	case "whisper":
		return newWhisper()
	case "auto":
		if os.Getenv(speech.EnvDeepgramKey) != "" {
			b, closeFn, err := newDeepgram()
			if err == nil {
				return b, closeFn, nil
			}
			log.Warn("deepgram unavailable, trying local whisper: %v", err)
		}
		return newWhisper()
	default:
		return nil, nil, fmt.Errorf("unknown capture mode %q", mode)
	}
}

type cliApp struct {
	ctrl    *engine.Controller
	recipes domain.RecipeSource
	capture *speech.CaptureManager // nil when voice input is disabled
	ui      *display.UI
	log     *logger.Logger

	recipeID string // recipe being cooked, set before run() for -recipe
	resume   bool
	listed   []domain.RecipeSummary // last listing, for numeric selection
}

func (a *cliApp) run(ctx context.Context) {
	if a.recipeID != "" {
		a.begin(ctx, a.recipeID)
	} else {
		a.showRecipes(ctx)
	}

	// Voice channel (nil-safe: receiving on a nil channel blocks forever,
	// which is fine — select will only use the keyboard case).
	var voiceCh <-chan string
	if a.capture != nil {
		voiceCh = a.capture.C()
	}
	uiCh := a.ui.InputChan()

	for {
		var input string
		var ok bool
		var spoken bool

		select {
		case <-ctx.Done():
			return
		case input, ok = <-uiCh:
			if !ok {
				return
			}
		case input = <-voiceCh:
			// Print what was heard so the user sees it in the scrollback.
			a.ui.PrintVoice(input)
			spoken = true
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Spoken words always belong to the conversation; typed input is
		// checked against local commands first.
		if !spoken && a.handleCommand(ctx, input) {
			continue
		}
		a.submit(ctx, input)
	}
}

// handleCommand runs local commands. Returns false when the input
// should go to the kitchen service as a conversation turn instead.
func (a *cliApp) handleCommand(ctx context.Context, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		a.ctrl.Reset()
		a.ui.Quit()
		return true
	case "help":
		a.showHelp()
		return true
	case "recipes", "list":
		a.showRecipes(ctx)
		return true
	case "status", "where":
		a.showStatus(ctx)
		return true
	case "reset":
		a.ctrl.Reset()
		a.recipeID = ""
		a.ui.PrintHint("Session abandoned.")
		a.showRecipes(ctx)
		return true
	case "listen":
		if a.capture != nil {
			a.capture.Start()
			a.ui.PrintHint("Listening…")
		} else {
			a.ui.PrintHint("Voice input is not available.")
		}
		return true
	case "import":
		if rest == "" {
			a.ui.PrintHint("Usage: import <markdown file or URL>")
			return true
		}
		a.importRecipe(ctx, rest)
		return true
	case "cook", "start":
		if rest == "" {
			a.ui.PrintHint("Usage: cook <number or recipe id>")
			return true
		}
		a.begin(ctx, rest)
		return true
	}

	// Outside a session, bare input selects a recipe. Inside one it is
	// conversation ("2" might be an answer about servings).
	if !a.ctrl.Active() {
		a.begin(ctx, input)
		return true
	}
	return false
}

// begin resolves a recipe reference (listing number or id) and starts —
// or, on the first call with -resume, restores — a session for it.
func (a *cliApp) begin(ctx context.Context, key string) {
	id := a.resolveRecipe(ctx, key)
	if id == "" {
		a.ui.PrintUrgent(fmt.Sprintf("No recipe matches %q. Type 'recipes' to see the list.", key))
		return
	}
	a.recipeID = id

	if a.resume {
		a.resume = false
		err := a.ctrl.Resume(ctx, id)
		if err == nil {
			a.ui.PrintStep("Resumed where you left off.")
			a.showStatus(ctx)
			if a.capture != nil {
				a.capture.Start()
			}
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			a.ui.PrintUrgent(fmt.Sprintf("Could not resume: %v", err))
			return
		}
		a.ui.PrintHint("Nothing to resume; starting fresh.")
	}

	if err := a.ctrl.StartSession(ctx, id); err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Could not start cooking: %v", err))
		a.recipeID = ""
		return
	}
	if r := a.ctrl.Recipe(); r != nil && len(r.Equipment) > 0 {
		a.ui.PrintHint("Get out: " + strings.Join(r.Equipment, ", "))
	}
}

// resolveRecipe turns "2" into the second listed recipe's id, or passes
// a matching id through.
func (a *cliApp) resolveRecipe(ctx context.Context, key string) string {
	if a.listed == nil {
		if list, err := a.recipes.List(ctx); err == nil {
			a.listed = list
		}
	}
	if n, err := strconv.Atoi(key); err == nil {
		if n >= 1 && n <= len(a.listed) {
			return a.listed[n-1].ID
		}
		return ""
	}
	for _, r := range a.listed {
		if r.ID == key {
			return r.ID
		}
	}
	// Not listed, but maybe still fetchable (fresh import on the service).
	if _, err := a.recipes.Get(ctx, key); err == nil {
		return key
	}
	return ""
}

// submit hands one turn to the controller. Runs in a goroutine so a
// slow kitchen service never freezes input; the in-flight guard keeps
// turn order.
func (a *cliApp) submit(ctx context.Context, text string) {
	if !a.ctrl.Active() {
		a.ui.PrintHint("Pick a recipe first — type its number or id.")
		return
	}
	go func() {
		if err := a.ctrl.Submit(ctx, text); err != nil {
			switch {
			case errors.Is(err, domain.ErrRequestInFlight):
				a.ui.PrintHint("One moment — still working on your last request.")
			case errors.Is(err, domain.ErrNoSession):
				// A reset raced the turn; nothing to do.
			default:
				a.log.Error("turn: %v", err)
			}
		}
	}()
}

func (a *cliApp) showRecipes(ctx context.Context) {
	list, err := a.recipes.List(ctx)
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Could not load recipes: %v", err))
		return
	}
	a.listed = list

	a.ui.PrintStep("Available recipes:")
	a.ui.Println("")
	for i, r := range list {
		a.ui.PrintInstruction(fmt.Sprintf("[%d] %s", i+1, r.Title))
		a.ui.PrintHint(fmt.Sprintf("    %s · serves %d · %d steps", r.ID, r.Servings, r.Steps))
	}
	a.ui.Println("")
	a.ui.PrintChat("Type a number (or id) to start cooking.")
}

func (a *cliApp) showStatus(ctx context.Context) {
	snap := a.ctrl.Snapshot()
	if snap == nil {
		a.ui.PrintHint("No session running.")
		return
	}

	shortID := snap.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	done := 0
	for _, status := range snap.StepStatuses {
		if status == domain.StepCompleted {
			done++
		}
	}

	a.ui.PrintStep("Session: " + shortID)
	a.ui.PrintInstruction("Recipe:  " + snap.RecipeTitle)
	a.ui.PrintInstruction("Phase:   " + snap.State.String())
	a.ui.PrintInstruction(fmt.Sprintf("Steps:   %d/%d done", done, len(snap.StepStatuses)))
	if r := a.ctrl.Recipe(); r != nil && snap.CurrentStep > 0 {
		if step := r.StepByNumber(snap.CurrentStep); step != nil {
			a.ui.PrintInstruction(fmt.Sprintf("Now:     step %d — %s", step.Number, step.Instruction))
			for _, cp := range step.Checkpoints {
				a.ui.PrintHint("look for: " + cp)
			}
		}
	}
	if t := snap.Timer; t != nil {
		a.ui.PrintChat(fmt.Sprintf("%s — %s remaining", t.Label, formatSeconds(t.Remaining)))
		for _, task := range t.ParallelTasks {
			a.ui.PrintHint("meanwhile: " + task.Instruction)
		}
	} else {
		a.ui.PrintHint("Timer:   none running")
	}
	a.ui.PrintHint(fmt.Sprintf("Started: %s ago", time.Since(snap.StartedAt).Round(time.Second)))
}

func (a *cliApp) importRecipe(ctx context.Context, ref string) {
	content, kind := ref, "url"
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		data, err := os.ReadFile(ref)
		if err != nil {
			a.ui.PrintUrgent(fmt.Sprintf("Could not read %s: %v", ref, err))
			return
		}
		content, kind = string(data), "markdown"
	}

	r, err := a.recipes.Import(ctx, content, kind)
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Import failed: %v", err))
		return
	}
	a.ui.PrintStep(fmt.Sprintf("Imported %q as %s", r.Title, r.ID))
	a.listed = nil // force a re-list so the new recipe gets a number
	a.showRecipes(ctx)
}

func (a *cliApp) showHelp() {
	a.ui.PrintStep("Commands:")
	a.ui.PrintInstruction("  recipes / list     Show what we can cook")
	a.ui.PrintInstruction("  <number> or <id>   Start cooking a recipe")
	a.ui.PrintInstruction("  cook <ref>         Same, works mid-session too")
	a.ui.PrintInstruction("  import <path|url>  Add a recipe (markdown file or URL)")
	a.ui.PrintInstruction("  status / where     Show session progress and the timer")
	a.ui.PrintInstruction("  listen             Reopen the microphone")
	a.ui.PrintInstruction("  reset              Abandon the session")
	a.ui.PrintInstruction("  quit / exit        Leave")
	a.ui.Println("")
	a.ui.PrintHint("Anything else is conversation — ask about steps, servings,")
	a.ui.PrintHint("substitutions, or say \"next\" when you're ready to move on.")
}

// envOr reads an environment variable with a fallback. godotenv has
// already loaded .env by the time flag defaults are evaluated.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// formatSeconds renders a second count as "8m00s" or "45s".
func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	m := total / 60
	s := total % 60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
