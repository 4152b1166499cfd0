// Package match runs a best-of-3 series between two competitors on a single
// game engine. Games 1 and 2 keep fixed colors (home plays white); a third
// game runs only on a 1-1 split, with game 2's loser taking white.
package match

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chess-arena/internal/engine"
	"chess-arena/internal/rules"
)

// Reasons recorded on MatchResult entries.
const (
	ReasonCheckmate        = "checkmate"
	ReasonStalemate        = "stalemate"
	ReasonTimeout          = "timeout"
	ReasonInvalidMove      = "invalid-move"
	ReasonDrawRepetition   = "draw-repetition"
	ReasonDrawInsufficient = "draw-insufficient"
	ReasonDrawFiftyMove    = "draw-50-move"
	ReasonForfeit          = "forfeit"
	ReasonTimeAdvantage    = "time-advantage"
)

// Competitor identifies one tournament entrant and the executable that plays
// for it.
type Competitor struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
}

func (c Competitor) descriptor() engine.PlayerDescriptor {
	return engine.Bot(c.Name, c.Resource)
}

// MatchResult records one decision. As a per-game entry Winner and Loser are
// empty when the game was drawn and Reason carries the draw classification.
// As a series decision Winner and Loser are always set.
type MatchResult struct {
	Winner string `json:"winner,omitempty"`
	Loser  string `json:"loser,omitempty"`
	Reason string `json:"reason"`
}

// Drawn reports whether the entry records a game without a winner.
func (m MatchResult) Drawn() bool { return m.Winner == "" }

// SeriesResult is the outcome of a full best-of-3 series.
type SeriesResult struct {
	ID          string           `json:"id"`
	Winner      string           `json:"winner"`
	Loser       string           `json:"loser"`
	Reason      string           `json:"reason"`
	Games       []MatchResult    `json:"games"`
	Score       map[string]int   `json:"score"`
	ThinkTimeMs map[string]int64 `json:"think_time_ms"`
}

// BracketScore is the games-won scoreline reported to bracket bookkeeping.
// A tie-broken series has no honest games-won margin, so it reports a
// nominal 2-1.
func (r *SeriesResult) BracketScore() (winnerGames, loserGames int) {
	w, l := r.Score[r.Winner], r.Score[r.Loser]
	if w > l {
		return w, l
	}
	return 2, 1
}

// GameEngine is the slice of the engine the controller drives. *engine.Engine
// satisfies it.
type GameEngine interface {
	LoadPlayers(ctx context.Context, white, black engine.PlayerDescriptor) error
	Play() error
	Reset() error
	WaitFinished(ctx context.Context) (engine.GameResult, error)
	Snapshot() engine.GameState
}

// Controller sequences the games of one series at a time.
type Controller struct {
	engine GameEngine
	logger *zap.Logger
}

func NewController(eng GameEngine, logger *zap.Logger) (*Controller, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{engine: eng, logger: logger}, nil
}

// Run plays the series between home and away. Home holds white in games 1
// and 2. The returned result always names a winner; a load failure or a
// cancelled context aborts the series with an error instead.
func (c *Controller) Run(ctx context.Context, home, away Competitor) (*SeriesResult, error) {
	if home.Name == "" || away.Name == "" {
		return nil, fmt.Errorf("competitor name is required")
	}
	if home.Name == away.Name {
		return nil, fmt.Errorf("competitors must differ, both are %q", home.Name)
	}

	series := &SeriesResult{
		ID:          uuid.NewString(),
		Score:       map[string]int{home.Name: 0, away.Name: 0},
		ThinkTimeMs: map[string]int64{home.Name: 0, away.Name: 0},
	}
	log := c.logger.With(
		zap.String("series_id", series.ID),
		zap.String("home", home.Name),
		zap.String("away", away.Name),
	)
	log.Info("series_started")

	if err := c.engine.LoadPlayers(ctx, home.descriptor(), away.descriptor()); err != nil {
		return nil, fmt.Errorf("load %s vs %s: %w", home.Name, away.Name, err)
	}
	g1, err := c.playGame(ctx, log, series, home, away)
	if err != nil {
		return nil, err
	}
	if err := c.engine.Reset(); err != nil {
		return nil, fmt.Errorf("reset before game 2: %w", err)
	}
	g2, err := c.playGame(ctx, log, series, home, away)
	if err != nil {
		return nil, err
	}

	switch {
	case series.Score[home.Name] == 2:
		c.decide(log, series, home.Name, away.Name, g2.Reason)
	case series.Score[away.Name] == 2:
		c.decide(log, series, away.Name, home.Name, g2.Reason)
	case series.Score[home.Name] == 1 && series.Score[away.Name] == 1:
		if err := c.playDecider(ctx, log, series, home, away, g2); err != nil {
			return nil, err
		}
	case series.Score[home.Name] == 1:
		c.decide(log, series, home.Name, away.Name, wonGameReason(series, home.Name, g1))
	case series.Score[away.Name] == 1:
		c.decide(log, series, away.Name, home.Name, wonGameReason(series, away.Name, g1))
	default:
		c.decideByThinkTime(log, series, home, away)
	}
	return series, nil
}

// playDecider runs game 3 of a 1-1 series. Game 2 was decisive (a split
// needs two decisive games), and its loser takes white.
func (c *Controller) playDecider(ctx context.Context, log *zap.Logger, series *SeriesResult, home, away Competitor, g2 MatchResult) error {
	white, black := home, away
	if g2.Winner == home.Name {
		white, black = away, home
	}

	if white.Name == home.Name {
		// Colors unchanged, the loaded channels can play on.
		if err := c.engine.Reset(); err != nil {
			return fmt.Errorf("reset before game 3: %w", err)
		}
	} else {
		if err := c.engine.LoadPlayers(ctx, white.descriptor(), black.descriptor()); err != nil {
			return fmt.Errorf("load %s vs %s: %w", white.Name, black.Name, err)
		}
	}

	g3, err := c.playGame(ctx, log, series, white, black)
	if err != nil {
		return err
	}
	if !g3.Drawn() {
		c.decide(log, series, g3.Winner, g3.Loser, g3.Reason)
		return nil
	}
	// Drawn decider: game 2's winner takes the series, the reason keeps
	// game 3's draw classification.
	loser := home.Name
	if g2.Winner == home.Name {
		loser = away.Name
	}
	c.decide(log, series, g2.Winner, loser, g3.Reason)
	return nil
}

// playGame starts the loaded game, waits it out, and folds the outcome into
// the series tallies.
func (c *Controller) playGame(ctx context.Context, log *zap.Logger, series *SeriesResult, white, black Competitor) (MatchResult, error) {
	game := len(series.Games) + 1
	if err := c.engine.Play(); err != nil {
		return MatchResult{}, fmt.Errorf("start game %d: %w", game, err)
	}
	result, err := c.engine.WaitFinished(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("game %d: %w", game, err)
	}

	state := c.engine.Snapshot()
	series.ThinkTimeMs[white.Name] += state.ThinkTimeMs(rules.White)
	series.ThinkTimeMs[black.Name] += state.ThinkTimeMs(rules.Black)

	entry := gameEntry(result, white.Name, black.Name)
	series.Games = append(series.Games, entry)
	if !entry.Drawn() {
		series.Score[entry.Winner]++
	}
	log.Info("series_game_finished",
		zap.Int("game", game),
		zap.String("white", white.Name),
		zap.String("winner", entry.Winner),
		zap.String("reason", entry.Reason),
		zap.Int("moves", len(state.History)),
	)
	return entry, nil
}

func (c *Controller) decide(log *zap.Logger, series *SeriesResult, winner, loser, reason string) {
	series.Winner = winner
	series.Loser = loser
	series.Reason = reason
	log.Info("series_finished",
		zap.String("winner", winner),
		zap.String("reason", reason),
		zap.Int("winner_games", series.Score[winner]),
		zap.Int("loser_games", series.Score[loser]),
	)
}

// decideByThinkTime settles a series of two drawn games. Lower cumulative
// think-time wins; an exact tie goes to the side that held white in game 1.
func (c *Controller) decideByThinkTime(log *zap.Logger, series *SeriesResult, home, away Competitor) {
	winner, loser := home.Name, away.Name
	if series.ThinkTimeMs[away.Name] < series.ThinkTimeMs[home.Name] {
		winner, loser = away.Name, home.Name
	}
	log.Info("series_time_advantage",
		zap.Int64("home_think_ms", series.ThinkTimeMs[home.Name]),
		zap.Int64("away_think_ms", series.ThinkTimeMs[away.Name]),
	)
	c.decide(log, series, winner, loser, ReasonTimeAdvantage)
}

// wonGameReason finds the reason of the single game the leader won.
func wonGameReason(series *SeriesResult, leader string, fallback MatchResult) string {
	for _, g := range series.Games {
		if g.Winner == leader {
			return g.Reason
		}
	}
	return fallback.Reason
}

func gameEntry(result engine.GameResult, whiteName, blackName string) MatchResult {
	nameOf := func(c rules.Color) string {
		if c == rules.White {
			return whiteName
		}
		return blackName
	}
	reason := reasonFor(result)
	if winner, ok := result.WonBy(); ok {
		return MatchResult{Winner: nameOf(winner), Loser: nameOf(winner.Opponent()), Reason: reason}
	}
	return MatchResult{Reason: reason}
}

func reasonFor(r engine.GameResult) string {
	switch r.Kind {
	case engine.ResultCheckmate:
		return ReasonCheckmate
	case engine.ResultStalemate:
		return ReasonStalemate
	case engine.ResultDrawRepetition:
		return ReasonDrawRepetition
	case engine.ResultDrawInsufficient:
		return ReasonDrawInsufficient
	case engine.ResultDrawFiftyMove:
		return ReasonDrawFiftyMove
	case engine.ResultForfeit:
		switch r.Forfeit {
		case engine.ForfeitTimeout:
			return ReasonTimeout
		case engine.ForfeitInvalid:
			return ReasonInvalidMove
		}
		return ReasonForfeit
	}
	return ReasonForfeit
}
