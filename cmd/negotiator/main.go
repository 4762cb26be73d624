// Command negotiator plays theory-of-mind negotiations, runs parameter
// sweeps and serves the HTTP control surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/profile"

	"github.com/talgya/mindtrade/internal/agents"
	"github.com/talgya/mindtrade/internal/api"
	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/engine"
	"github.com/talgya/mindtrade/internal/experiment"
	"github.com/talgya/mindtrade/internal/persistence"
	"github.com/talgya/mindtrade/internal/trade"
)

const usage = `usage: negotiator <command> [flags]

commands:
  play        play rounds between two agents and print the results
  experiment  sweep ToM order, learning rate and lying; write CSV rows
  serve       serve the HTTP control API
  save        generate a scenario and store it under a name
  list        list stored scenarios
`

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	setupLogging(os.Getenv("MINDTRADE_LOG_LEVEL"))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "play":
		err = runPlay(ctx, args)
	case "experiment":
		err = runExperiment(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "save":
		err = runSave(args)
	case "list":
		err = runList(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// setupLogging uses a text handler on terminals and JSON otherwise.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// storeFlags selects the snapshot backend.
type storeFlags struct {
	dbPath string
	dir    string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dbPath, "db", os.Getenv("MINDTRADE_DB"), "SQLite database for snapshots and experiment rows")
	fs.StringVar(&f.dir, "configs", envOr("MINDTRADE_CONFIG_DIR", "data/configs"), "snapshot directory when no database is set")
}

// open returns the snapshot store and, when a database is configured, the
// database itself. The closer releases whatever was opened.
func (f *storeFlags) open() (persistence.Store, *persistence.DB, func(), error) {
	if f.dbPath != "" {
		db, err := persistence.Open(f.dbPath)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("database opened", "path", f.dbPath)
		return db, db, func() { db.Close() }, nil
	}
	fs, err := persistence.NewFileStore(f.dir)
	if err != nil {
		return nil, nil, nil, err
	}
	return fs, nil, func() {}, nil
}

// scenarioFlags describe a generated scenario.
type scenarioFlags struct {
	seed      int64
	width     int
	height    int
	chips     int
	maxOffers int
	minGoal   int
	iniTom    uint
	resTom    uint
	iniLR     float64
	resLR     float64
	iniLie    bool
	resLie    bool
}

func (f *scenarioFlags) register(fs *flag.FlagSet) {
	def := config.DefaultGenSpec()
	fs.Int64Var(&f.seed, "seed", 0, "scenario seed (0 = random)")
	fs.IntVar(&f.width, "width", def.Width, "board width")
	fs.IntVar(&f.height, "height", def.Height, "board height")
	fs.IntVar(&f.chips, "chips", def.ChipsPerAgent, "chips per agent")
	fs.IntVar(&f.maxOffers, "max-offers", def.MaxOffers, "offer budget per round")
	fs.IntVar(&f.minGoal, "min-goal-distance", def.MinGoalDistance, "minimum goal distance from the start cell")
	fs.UintVar(&f.iniTom, "i-tom", 0, "initiator theory-of-mind order (0-2)")
	fs.UintVar(&f.resTom, "r-tom", 0, "responder theory-of-mind order (0-2)")
	fs.Float64Var(&f.iniLR, "i-lr", 0.5, "initiator learning rate")
	fs.Float64Var(&f.resLR, "r-lr", 0.5, "responder learning rate")
	fs.BoolVar(&f.iniLie, "i-lie", false, "initiator may lie (requires -i-tom 2)")
	fs.BoolVar(&f.resLie, "r-lie", false, "responder may lie (requires -r-tom 2)")
}

func (f *scenarioFlags) spec() config.GenSpec {
	return config.GenSpec{
		Width:           f.width,
		Height:          f.height,
		ChipsPerAgent:   f.chips,
		MaxOffers:       f.maxOffers,
		MinGoalDistance: f.minGoal,
		Initiator:       agents.Params{Order: agents.Order(f.iniTom), LearningRate: f.iniLR, CanLie: f.iniLie},
		Responder:       agents.Params{Order: agents.Order(f.resTom), LearningRate: f.resLR, CanLie: f.resLie},
	}
}

func (f *scenarioFlags) config() (config.Config, error) {
	if f.iniTom > uint(agents.MaxOrder) || f.resTom > uint(agents.MaxOrder) {
		return config.Config{}, fmt.Errorf("%w: theory-of-mind order must be 0-%d", config.ErrInvalidConfig, agents.MaxOrder)
	}
	cfg := config.Generate(f.spec(), f.seed)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runPlay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	var (
		sc      scenarioFlags
		st      storeFlags
		load    = fs.String("load", "", "play a stored scenario instead of generating one")
		rounds  = fs.Int("rounds", 1, "rounds to play")
		verbose = fs.Bool("moves", false, "print every offer")
		prof    = fs.String("profile", "", "write a CPU profile to this directory")
	)
	sc.register(fs)
	st.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prof != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*prof), profile.NoShutdownHook).Stop()
	}

	cfg, err := loadOrGenerate(*load, &sc, &st)
	if err != nil {
		return err
	}
	game, err := engine.NewGame(cfg)
	if err != nil {
		return err
	}
	eng := engine.NewEngine(game)
	if *verbose {
		eng.OnStep = func(mv engine.Move) { printMove(os.Stdout, mv) }
	}
	eng.OnRound = func(r engine.RoundResult) { printRound(os.Stdout, r) }

	report, err := eng.Run(ctx, *rounds)
	if err != nil {
		return err
	}

	eng.View(func(g *engine.Game) {
		for _, role := range []trade.Role{trade.Initiator, trade.Responder} {
			a := g.Agent(role)
			fmt.Printf("%-9s %-9s belief entropy %.3f\n", role, a.Strategy, a.Beliefs.Entropy(agents.Order1))
		}
		if frontier, err := g.ParetoOutcomes(); err == nil {
			fmt.Printf("pareto frontier: %s outcomes\n", humanize.Comma(int64(len(frontier))))
		}
	})
	fmt.Printf("%s rounds, %s offers in %s", humanize.Comma(int64(len(report.Rounds))),
		humanize.Comma(int64(report.Steps)), report.Elapsed.Round(time.Millisecond))
	if report.Aborted {
		fmt.Print(" (aborted)")
	}
	fmt.Println()
	return nil
}

func loadOrGenerate(name string, sc *scenarioFlags, st *storeFlags) (config.Config, error) {
	if name == "" {
		return sc.config()
	}
	store, _, closeStore, err := st.open()
	if err != nil {
		return config.Config{}, err
	}
	defer closeStore()
	return store.Load(name)
}

func printMove(w io.Writer, mv engine.Move) {
	if mv.Withdrawn {
		fmt.Fprintf(w, "  #%d %s withdraws\n", mv.Index+1, mv.Proposer)
		return
	}
	claim := ""
	if mv.Announced != nil {
		claim = fmt.Sprintf(" claiming goal %v", *mv.Announced)
	}
	fmt.Fprintf(w, "  #%d %s offers %v%s (p=%.2f), initiator gives [%s], responder gives [%s] -> accepted=%v\n",
		mv.Index, mv.Proposer, mv.Offer, claim, mv.Acceptance,
		mv.Gives[trade.Initiator], mv.Gives[trade.Responder], mv.Accepted)
}

func printRound(w io.Writer, r engine.RoundResult) {
	fmt.Fprintf(w, "round %d: %s after %d offers, gains %+.0f / %+.0f, pareto efficient %v\n",
		r.Round, r.Status, r.NrOffers, r.Gain(trade.Initiator), r.Gain(trade.Responder), r.Efficient)
}

func runExperiment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiment", flag.ContinueOnError)
	var (
		st      storeFlags
		grid    = experiment.DefaultGrid()
		lrs     = fs.String("lrs", "0.3,0.9", "comma-separated learning rates")
		orders  = fs.String("orders", "0,1,2", "comma-separated theory-of-mind orders")
		noLie   = fs.Bool("honest", false, "skip lying variants")
		out     = fs.String("out", "", "CSV output file (default stdout)")
		persist = fs.Bool("persist", false, "store rows in the -db database")
		prof    = fs.String("profile", "", "write a CPU profile to this directory")
	)
	fs.IntVar(&grid.Rounds, "rounds", grid.Rounds, "rounds per combination")
	fs.IntVar(&grid.Workers, "workers", 0, "parallel games (0 = GOMAXPROCS)")
	fs.Int64Var(&grid.Seed, "seed", grid.Seed, "scenario seed shared by all combinations")
	st.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prof != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*prof), profile.NoShutdownHook).Stop()
	}

	var err error
	if grid.LearningRates, err = parseFloats(*lrs); err != nil {
		return err
	}
	if grid.Orders, err = parseOrders(*orders); err != nil {
		return err
	}
	if *noLie {
		grid.Lying = []bool{false}
	}

	res, err := experiment.Run(ctx, grid)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := experiment.WriteCSV(w, res.Rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	if *persist {
		_, db, closeStore, err := st.open()
		if err != nil {
			return err
		}
		defer closeStore()
		if db == nil {
			return errors.New("-persist requires -db or MINDTRADE_DB")
		}
		gridJSON, err := json.Marshal(grid)
		if err != nil {
			return err
		}
		if err := db.SaveRun(string(gridJSON), res); err != nil {
			return err
		}
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseOrders(s string) ([]agents.Order, error) {
	var out []agents.Order
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil || v > uint64(agents.MaxOrder) {
			return nil, fmt.Errorf("%w: order %q", config.ErrInvalidConfig, part)
		}
		out = append(out, agents.Order(v))
	}
	return out, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		sc   scenarioFlags
		st   storeFlags
		load = fs.String("load", "", "start from a stored scenario")
		port = fs.Int("port", 8080, "HTTP port (MINDTRADE_PORT overrides the default)")
	)
	sc.register(fs)
	st.register(fs)
	if v := os.Getenv("MINDTRADE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*port = p
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadOrGenerate(*load, &sc, &st)
	if err != nil {
		return err
	}
	game, err := engine.NewGame(cfg)
	if err != nil {
		return err
	}
	store, _, closeStore, err := st.open()
	if err != nil {
		return err
	}
	defer closeStore()

	adminKey := os.Getenv("MINDTRADE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("MINDTRADE_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	srv := api.NewServer(engine.NewEngine(game), store, *port, adminKey)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", *port)
	return srv.ListenAndServe(ctx)
}

func runSave(args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	var (
		sc        scenarioFlags
		st        storeFlags
		name      = fs.String("name", "", "snapshot name (1-10 letters or digits)")
		overwrite = fs.Bool("overwrite", false, "replace an existing snapshot")
	)
	sc.register(fs)
	st.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sc.config()
	if err != nil {
		return err
	}
	store, _, closeStore, err := st.open()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Save(*name, cfg, *overwrite); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return fmt.Errorf("%w (use -overwrite to replace it)", err)
		}
		return err
	}
	fmt.Printf("saved %q (seed %d)\n", *name, cfg.Seed)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var st storeFlags
	st.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, db, closeStore, err := st.open()
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := store.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	if db == nil {
		return nil
	}
	for _, m := range []struct{ key, label string }{
		{persistence.MetaLastLoaded, "last loaded snapshot"},
		{persistence.MetaLastRun, "last experiment run"},
	} {
		v, ok, err := db.GetMeta(m.key)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s: %s\n", m.label, v)
		}
	}
	return nil
}
