// Package tournament sequences best-of-3 series through single- or
// double-elimination brackets, tracking standings, an append-only game log,
// and head-to-head records.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"chess-arena/internal/bracket"
	"chess-arena/internal/match"
)

var (
	ErrTournamentRunning    = errors.New("tournament is running")
	ErrNotEnoughCompetitors = errors.New("not enough competitors")
	ErrUnknownDiscipline    = errors.New("unknown discipline")
)

// SeriesRunner plays one best-of-3 series. *match.Controller satisfies it.
type SeriesRunner interface {
	Run(ctx context.Context, home, away match.Competitor) (*match.SeriesResult, error)
}

// Config tunes one controller.
type Config struct {
	Discipline        Discipline
	Seed              int64 // 0 seeds from the clock
	ReshufflePerRound bool  // single elimination reshuffles winners each round
	TimeLimitMs       int   // advisory, published in snapshots
}

// Controller owns tournament state. One tournament runs at a time; Run
// blocks until it finishes. Snapshot is safe from other goroutines.
type Controller struct {
	runner SeriesRunner
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand

	mu          sync.Mutex
	status      Status
	competitors []match.Competitor
	rounds      [][]*Match
	thirdPlace  *Match
	current     *Match
	log         []GameLogEntry
	h2h         map[string]*PairRecord
	stage       *bracket.Stage
	champion    string
	runnerUp    string
	third       string
	fourth      string
}

func NewController(runner SeriesRunner, cfg Config, logger *zap.Logger) (*Controller, error) {
	if runner == nil {
		return nil, fmt.Errorf("series runner is required")
	}
	if cfg.Discipline == "" {
		cfg.Discipline = SingleElimination
	}
	if cfg.Discipline != SingleElimination && cfg.Discipline != DoubleElimination {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscipline, cfg.Discipline)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
		status: StatusIdle,
		h2h:    make(map[string]*PairRecord),
	}, nil
}

// Run plays a whole tournament over the given competitors and blocks until
// it finishes. A previous idle or finished tournament is discarded; a
// running one is protected.
func (c *Controller) Run(ctx context.Context, competitors []match.Competitor) error {
	if err := c.begin(competitors); err != nil {
		return err
	}

	var err error
	switch c.cfg.Discipline {
	case DoubleElimination:
		err = c.runDouble(ctx)
	default:
		err = c.runSingle(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	if err != nil {
		c.status = StatusIdle
		c.logger.Error("tournament_aborted", zap.Error(err))
		return err
	}
	c.status = StatusFinished
	c.logger.Info("tournament_finished",
		zap.String("champion", c.champion),
		zap.String("runner_up", c.runnerUp),
		zap.String("third", c.third),
		zap.String("fourth", c.fourth),
	)
	return nil
}

// Reset discards a finished or idle tournament.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		return ErrTournamentRunning
	}
	c.clearLocked()
	return nil
}

// Snapshot returns a deep copy of the current tournament state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := State{
		Status:      c.status,
		Discipline:  c.cfg.Discipline,
		TimeLimitMs: c.cfg.TimeLimitMs,
		ThirdPlace:  c.thirdPlace.clone(),
		Current:     c.current.clone(),
		Log:         append([]GameLogEntry(nil), c.log...),
		HeadToHead:  make(map[string]PairRecord, len(c.h2h)),
		Champion:    c.champion,
		RunnerUp:    c.runnerUp,
		Third:       c.third,
		Fourth:      c.fourth,
	}
	for _, round := range c.rounds {
		copied := make([]*Match, len(round))
		for i, m := range round {
			copied[i] = m.clone()
		}
		state.Rounds = append(state.Rounds, copied)
	}
	for k, v := range c.h2h {
		state.HeadToHead[k] = *v
	}
	if c.stage != nil {
		state.Bracket = c.stage.Matches()
	}
	return state
}

func (c *Controller) begin(competitors []match.Competitor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		return ErrTournamentRunning
	}
	if len(competitors) < 2 {
		return fmt.Errorf("%w: %d", ErrNotEnoughCompetitors, len(competitors))
	}
	seen := make(map[string]bool, len(competitors))
	for _, comp := range competitors {
		if comp.Name == "" {
			return fmt.Errorf("competitor name is required")
		}
		if seen[comp.Name] {
			return fmt.Errorf("duplicate competitor %q", comp.Name)
		}
		seen[comp.Name] = true
	}

	c.clearLocked()
	c.competitors = append([]match.Competitor(nil), competitors...)
	c.status = StatusRunning
	c.logger.Info("tournament_started",
		zap.String("discipline", string(c.cfg.Discipline)),
		zap.Int("competitors", len(competitors)),
	)
	return nil
}

func (c *Controller) clearLocked() {
	c.status = StatusIdle
	c.competitors = nil
	c.rounds = nil
	c.thirdPlace = nil
	c.current = nil
	c.log = nil
	c.h2h = make(map[string]*PairRecord)
	c.stage = nil
	c.champion, c.runnerUp, c.third, c.fourth = "", "", "", ""
}

// runSeries plays one series and folds the outcome into the match record,
// the game log, and the head-to-head table.
func (c *Controller) runSeries(ctx context.Context, m *Match, home, away match.Competitor) (*match.SeriesResult, error) {
	c.mu.Lock()
	m.Status = MatchRunning
	c.current = m
	c.mu.Unlock()

	c.logger.Info("tournament_match_started",
		zap.String("match_id", m.ID),
		zap.Int("round", m.Round),
		zap.String("home", home.Name),
		zap.String("away", away.Name),
	)

	result, err := c.runner.Run(ctx, home, away)
	if err != nil {
		return nil, fmt.Errorf("series %s vs %s: %w", home.Name, away.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	m.Games = append([]match.MatchResult(nil), result.Games...)
	m.Winner = result.Winner
	m.Loser = result.Loser
	m.Status = MatchFinished
	c.current = nil
	for i, g := range result.Games {
		c.log = append(c.log, GameLogEntry{MatchID: m.ID, Game: i + 1, Result: g})
		c.recordGameLocked(home.Name, away.Name, g)
	}
	return result, nil
}

func (c *Controller) recordGameLocked(a, b string, g match.MatchResult) {
	key := PairKey(a, b)
	rec, ok := c.h2h[key]
	if !ok {
		first, second := a, b
		if first > second {
			first, second = second, first
		}
		rec = &PairRecord{A: first, B: second}
		c.h2h[key] = rec
	}
	switch {
	case g.Drawn():
		rec.Draws++
	case g.Winner == rec.A:
		rec.WinsA++
	default:
		rec.WinsB++
	}
}

func (c *Controller) shuffle(comps []match.Competitor) {
	c.rng.Shuffle(len(comps), func(i, j int) {
		comps[i], comps[j] = comps[j], comps[i]
	})
}
