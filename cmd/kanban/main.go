package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/vanderheijden86/boardstate/internal/datasource"
	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/config"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
	"github.com/vanderheijden86/boardstate/pkg/state"
	"github.com/vanderheijden86/boardstate/pkg/ui"
	"github.com/vanderheijden86/boardstate/pkg/version"
	"github.com/vanderheijden86/boardstate/pkg/watcher"
)

// exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitConflict = 3
)

type options struct {
	configPath string
	file       string
	backend    string
	ephemeral  bool

	addBoard  string
	prefix    string
	addColumn string
	wipLimit  int
	addCard   string
	priority  string
	moveCard  string
	board     string
	column    string

	list     bool
	tui      bool
	noWatch  bool
	register string
	discover string
	migrate  string
	metrics  bool
	version  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("kanban", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Config file (default: XDG config dir)")
	fs.StringVar(&o.file, "file", "", "Board file path or registered board name")
	fs.StringVar(&o.backend, "backend", "", "Storage backend: json or sqlite (default: from extension)")
	fs.BoolVar(&o.ephemeral, "ephemeral", false, "Keep everything in memory, never write")
	fs.StringVar(&o.addBoard, "add-board", "", "Create a board with this name")
	fs.StringVar(&o.prefix, "prefix", "", "Card id prefix for -add-board (e.g. KAN)")
	fs.StringVar(&o.addColumn, "add-column", "", "Create a column with this name on -board")
	fs.IntVar(&o.wipLimit, "wip", 0, "WIP limit for -add-column (0 = none)")
	fs.StringVar(&o.addCard, "add-card", "", "Create a card with this title in -column")
	fs.StringVar(&o.priority, "priority", "", "Priority for -add-card: low, medium, high, critical")
	fs.StringVar(&o.moveCard, "move", "", "Move the card with this id to -column")
	fs.StringVar(&o.board, "board", "", "Board id or name")
	fs.StringVar(&o.column, "column", "", "Column id or name")
	fs.BoolVar(&o.list, "list", false, "Print boards, columns and cards")
	fs.BoolVar(&o.tui, "tui", false, "Open the interactive board view")
	fs.BoolVar(&o.noWatch, "no-watch", false, "Do not watch the board file for external changes")
	fs.StringVar(&o.register, "register", "", "Register -file under this name in the config")
	fs.StringVar(&o.discover, "discover", "", "List board files found in this directory")
	fs.StringVar(&o.migrate, "migrate-sqlite", "", "Copy the JSON board into a new SQLite database at this path")
	fs.BoolVar(&o.metrics, "metrics", false, "Print persistence counters and timings on exit")
	fs.BoolVar(&o.version, "version", false, "Show version")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	actions := 0
	for _, set := range []bool{o.addBoard != "", o.addColumn != "", o.addCard != "", o.moveCard != ""} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return o, errors.New("-add-board, -add-column, -add-card and -move are mutually exclusive")
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if o.version {
		fmt.Fprintf(stdout, "kanban %s\n", version.String())
		return exitOK
	}
	if o.metrics {
		metrics.SetEnabled(true)
		defer printMetrics(stderr)
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitUsage
	}
	if o.backend != "" {
		cfg.Storage.Backend = strings.ToLower(o.backend)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitUsage
	}
	path := cfg.ResolveFile(o.file)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case o.discover != "":
		return discover(ctx, o.discover, stdout, stderr)
	case o.migrate != "":
		return migrate(ctx, path, o.migrate, stdout, stderr)
	case o.register != "":
		return register(cfg, o, path, stdout, stderr)
	}

	coord, opened, loaded, err := openCoordinator(ctx, cfg, o, path, o.tui && !o.noWatch)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening %s: %v\n", path, err)
		return exitCode(err)
	}
	if opened.Migrated {
		fmt.Fprintf(stderr, "Migrated %s to %s\n", opened.MigratedFrom, path)
	}
	if loaded.Migrated {
		fmt.Fprintf(stderr, "Upgraded legacy board file %s (backup: %s)\n", path, loaded.BackupPath)
	}

	code := exitOK
	if err := mutate(coord, o); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		code = exitCode(err)
	} else if o.list {
		printBoards(stdout, coord.Snapshot(), isTerminal(stdout))
	}
	if code == exitOK && o.tui {
		if err := runTUI(ctx, coord, path, cfg); err != nil {
			fmt.Fprintf(stderr, "Error running board view: %v\n", err)
			code = exitError
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := coord.Close(closeCtx); err != nil {
		fmt.Fprintf(stderr, "Error saving %s: %v\n", path, err)
		if code == exitOK {
			code = exitCode(err)
		}
	}
	return code
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// exitCode maps error kinds onto process exit codes.
func exitCode(err error) int {
	switch state.KindOf(err) {
	case state.KindConflict:
		return exitConflict
	case state.KindValidation, state.KindNotFound:
		return exitUsage
	default:
		return exitError
	}
}

func openCoordinator(ctx context.Context, cfg config.Config, o options, path string, watch bool) (*state.Coordinator, datasource.Opened, persistence.LoadResult, error) {
	opts := []state.Option{
		state.WithMinSaveInterval(cfg.Save.MinInterval),
		state.WithMaxSaveDelay(cfg.Save.MaxDelay),
		state.WithHistoryLimit(cfg.History.Limit),
		state.WithQueueCapacity(cfg.Save.QueueCapacity),
	}
	var opened datasource.Opened
	if !o.ephemeral {
		var err error
		opened, err = datasource.OpenStore(ctx, path, datasource.OpenOptions{
			Backend:     cfg.Storage.Backend,
			AutoMigrate: true,
		})
		if err != nil {
			return nil, opened, persistence.LoadResult{}, err
		}
		opts = append(opts, state.WithStore(opened.Store))

		// SQLite writes go through WAL files, so only JSON boards are watched.
		if watch && cfg.Watch.WatchEnabled() && opened.Type == datasource.SourceTypeJSON {
			w, err := watcher.NewWatcher(path,
				watcher.WithDebounceDuration(cfg.Watch.Debounce),
				watcher.WithPollInterval(cfg.Watch.PollInterval),
				watcher.WithForcePoll(cfg.Watch.ForcePoll),
				watcher.WithInstanceID(opened.Store.InstanceID()),
			)
			if err != nil {
				opened.Store.Close()
				return nil, opened, persistence.LoadResult{}, err
			}
			opts = append(opts, state.WithWatcher(w))
		}
	}

	coord := state.New(opts...)
	res, err := coord.Open(ctx)
	if err != nil {
		if opened.Store != nil {
			opened.Store.Close()
		}
		return nil, opened, res, err
	}
	return coord, opened, res, nil
}

// mutate runs the single requested mutation, if any.
func mutate(c *state.Coordinator, o options) error {
	snap := c.Snapshot()
	var cmd command.Command

	switch {
	case o.addBoard != "":
		cmd = command.CreateBoard{Name: o.addBoard, CardPrefix: o.prefix}

	case o.addColumn != "":
		b, err := findBoard(&snap, o.board)
		if err != nil {
			return err
		}
		cmd = command.CreateColumn{BoardID: b.ID, Name: o.addColumn, Position: -1, WIPLimit: o.wipLimit}

	case o.addCard != "":
		col, err := findColumn(&snap, o.board, o.column)
		if err != nil {
			return err
		}
		cmd = command.CreateCard{ColumnID: col.ID, Title: o.addCard, Priority: model.CardPriority(o.priority), Position: -1}

	case o.moveCard != "":
		ci := snap.FindCard(o.moveCard)
		if ci < 0 {
			return command.NotFoundError{Kind: "card", ID: o.moveCard}
		}
		boardRef := o.board
		if boardRef == "" {
			if bi := snap.BoardOfColumn(snap.Cards[ci].ColumnID); bi >= 0 {
				boardRef = snap.Boards[bi].ID
			}
		}
		col, err := findColumn(&snap, boardRef, o.column)
		if err != nil {
			return err
		}
		cmd = command.MoveCard{CardID: o.moveCard, ColumnID: col.ID, Position: -1}

	default:
		return nil
	}

	if _, err := c.Execute(cmd); err != nil {
		return err
	}
	return nil
}

// findBoard resolves ref as a board id, then as a case-insensitive name. An
// empty ref picks the only board.
func findBoard(s *model.Snapshot, ref string) (model.Board, error) {
	if ref == "" {
		if len(s.Boards) == 1 {
			return s.Boards[0], nil
		}
		return model.Board{}, command.ValidationError{Field: "board", Reason: fmt.Sprintf("-board is required with %d boards", len(s.Boards))}
	}
	if i := s.FindBoard(ref); i >= 0 {
		return s.Boards[i], nil
	}
	for _, b := range s.Boards {
		if strings.EqualFold(b.Name, ref) {
			return b, nil
		}
	}
	return model.Board{}, command.NotFoundError{Kind: "board", ID: ref}
}

func findColumn(s *model.Snapshot, boardRef, ref string) (model.Column, error) {
	if ref == "" {
		return model.Column{}, command.ValidationError{Field: "column", Reason: "-column is required"}
	}
	if i := s.FindColumn(ref); i >= 0 {
		return s.Columns[i], nil
	}
	b, err := findBoard(s, boardRef)
	if err != nil {
		return model.Column{}, err
	}
	for _, c := range s.Columns {
		if c.BoardID == b.ID && strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return model.Column{}, command.NotFoundError{Kind: "column", ID: ref}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var (
	boardStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"})
	columnStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"})
)

// printBoards writes a plain outline of every board. Styling is applied only
// when color is true.
func printBoards(w io.Writer, s model.Snapshot, color bool) {
	render := func(st lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return st.Render(text)
	}
	if len(s.Boards) == 0 {
		fmt.Fprintln(w, "No boards. Create one with -add-board NAME.")
		return
	}
	for _, b := range s.Boards {
		fmt.Fprintf(w, "%s %s\n", render(boardStyle, b.Name), render(mutedStyle, "["+b.ID+"]"))
		var cols []model.Column
		for _, c := range s.Columns {
			if c.BoardID == b.ID {
				cols = append(cols, c)
			}
		}
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
		for _, c := range cols {
			cards := s.ColumnCards(c.ID)
			fmt.Fprintf(w, "  %s (%d)\n", render(columnStyle, c.Name), len(cards))
			for _, i := range cards {
				card := s.Cards[i]
				fmt.Fprintf(w, "    %s %s %s\n", ui.StatusIcon(card.Status), b.FormatCardID(card.CardNumber), card.Title)
			}
		}
	}
}

func runTUI(ctx context.Context, c *state.Coordinator, path string, cfg config.Config) error {
	tick := ui.DefaultSaveTick
	if cfg.Save.MinInterval > 0 && cfg.Save.MinInterval/2 < tick {
		tick = cfg.Save.MinInterval / 2
	}
	m := ui.NewModel(ctx, c, ui.WithPath(path), ui.WithSaveTick(tick))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func discover(ctx context.Context, dir string, stdout, stderr io.Writer) int {
	sources, err := datasource.DiscoverSources(ctx, datasource.DiscoveryOptions{
		Dir:                    dir,
		ValidateAfterDiscovery: true,
		IncludeInvalid:         true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if len(sources) == 0 {
		fmt.Fprintf(stdout, "No board files in %s\n", dir)
		return exitOK
	}
	for _, s := range sources {
		fmt.Fprintln(stdout, s.String())
	}
	if best, err := datasource.SelectBestSource(sources); err == nil {
		fmt.Fprintf(stdout, "\nNewest valid: %s\n", best.Path)
	}
	return exitOK
}

func migrate(ctx context.Context, jsonPath, dbPath string, stdout, stderr io.Writer) int {
	res, err := persistence.MigrateJSONToSQLite(ctx, jsonPath, dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Migration failed: %v\n", err)
		return exitCode(err)
	}
	diff, err := datasource.CompareSources(ctx,
		datasource.DataSource{Type: datasource.SourceTypeJSON, Path: jsonPath},
		datasource.DataSource{Type: datasource.SourceTypeSQLite, Path: dbPath},
		datasource.DefaultDiffOptions())
	if err != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		return exitError
	}
	if diff.HasInconsistencies() {
		fmt.Fprint(stderr, diff.Summary())
		return exitError
	}
	fmt.Fprintf(stdout, "Migrated %d boards and %d cards to %s\n", len(res.Snapshot.Boards), len(res.Snapshot.Cards), dbPath)
	return exitOK
}

func register(cfg config.Config, o options, path string, stdout, stderr io.Writer) int {
	if o.file == "" {
		fmt.Fprintln(stderr, "Error: -register needs -file")
		return exitUsage
	}
	cfg.RegisterBoard(o.register, path)
	save := config.Save
	if o.configPath != "" {
		save = func(c config.Config) error { return config.SaveTo(c, o.configPath) }
	}
	if err := save(cfg); err != nil {
		fmt.Fprintf(stderr, "Error saving config: %v\n", err)
		return exitError
	}
	fmt.Fprintf(stdout, "Registered %s -> %s\n", o.register, path)
	return exitOK
}

func printMetrics(w io.Writer) {
	values := metrics.CounterValues()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-24s %d\n", name, values[name])
	}
	for _, st := range metrics.AllTimingStats() {
		if st.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "%-24s n=%d avg=%.2fms max=%.2fms\n", st.Name, st.Count, st.AvgMs, st.MaxMs)
	}
}
