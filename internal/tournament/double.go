package tournament

import (
	"context"
	"fmt"

	"chess-arena/internal/bracket"
	"chess-arena/internal/match"
)

// runDouble registers the shuffled field with a double-elimination bracket
// and plays whatever it reports ready until a champion stands. Tie-broken
// series report a nominal 2-1 so the bracket always sees a decisive score.
func (c *Controller) runDouble(ctx context.Context) error {
	entrants := append([]match.Competitor(nil), c.competitors...)
	c.shuffle(entrants)

	names := make([]string, len(entrants))
	byName := make(map[string]match.Competitor, len(entrants))
	for i, comp := range entrants {
		names[i] = comp.Name
		byName[comp.Name] = comp
	}

	stage, err := bracket.New(names)
	if err != nil {
		return fmt.Errorf("seed bracket: %w", err)
	}
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()

	for {
		c.mu.Lock()
		pairing, ok := stage.NextReady()
		c.mu.Unlock()
		if !ok {
			break
		}

		home, away := byName[pairing.Home], byName[pairing.Away]
		m := &Match{
			ID:      pairing.ID,
			Bracket: pairing.Bracket,
			Round:   pairing.Round,
			Slot:    pairing.Index,
			White:   competitorPtr(home),
			Black:   competitorPtr(away),
			Status:  MatchPending,
		}
		result, err := c.runSeries(ctx, m, home, away)
		if err != nil {
			return err
		}

		winnerGames, loserGames := result.BracketScore()
		scoreHome, scoreAway := winnerGames, loserGames
		if result.Winner != home.Name {
			scoreHome, scoreAway = loserGames, winnerGames
		}
		c.mu.Lock()
		err = stage.Report(pairing.ID, scoreHome, scoreAway)
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("report match %s: %w", pairing.ID, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	placement, done := stage.Standings()
	if !done {
		return fmt.Errorf("bracket drained without standings")
	}
	c.champion = placement.Champion
	c.runnerUp = placement.RunnerUp
	c.third = placement.Third
	c.fourth = placement.Fourth
	return nil
}
