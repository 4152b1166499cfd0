package tournament

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chess-arena/internal/match"
)

// runSingle plays rounds of shuffled pairings until one competitor remains.
// An odd entrant count leaves the last shuffled competitor with a bye. When
// the penultimate round was two played matches, their losers meet in a
// third-place series.
func (c *Controller) runSingle(ctx context.Context) error {
	entrants := append([]match.Competitor(nil), c.competitors...)
	c.shuffle(entrants)

	var semifinalLosers []match.Competitor
	var finalMatch *Match
	roundNum := 0

	for len(entrants) > 1 {
		roundNum++
		if roundNum > 1 && c.cfg.ReshufflePerRound {
			c.shuffle(entrants)
		}

		pairCount := len(entrants) / 2
		round := make([]*Match, 0, pairCount+1)
		for i := 0; i < pairCount; i++ {
			round = append(round, &Match{
				ID:     uuid.NewString(),
				Round:  roundNum,
				Slot:   i,
				White:  competitorPtr(entrants[2*i]),
				Black:  competitorPtr(entrants[2*i+1]),
				Status: MatchPending,
			})
		}

		var byeComp *match.Competitor
		if len(entrants)%2 == 1 {
			byeComp = competitorPtr(entrants[len(entrants)-1])
			round = append(round, &Match{
				ID:     uuid.NewString(),
				Round:  roundNum,
				Slot:   pairCount,
				White:  competitorPtr(*byeComp),
				Status: MatchBye,
				Winner: byeComp.Name,
			})
			c.logger.Info("round_bye",
				zap.Int("round", roundNum),
				zap.String("competitor", byeComp.Name),
			)
		}

		c.mu.Lock()
		c.rounds = append(c.rounds, round)
		c.mu.Unlock()

		winners := make([]match.Competitor, 0, pairCount+1)
		losers := make([]match.Competitor, 0, pairCount)
		for i := 0; i < pairCount; i++ {
			home, away := entrants[2*i], entrants[2*i+1]
			result, err := c.runSeries(ctx, round[i], home, away)
			if err != nil {
				return err
			}
			winner, loser := home, away
			if result.Winner == away.Name {
				winner, loser = away, home
			}
			winners = append(winners, winner)
			losers = append(losers, loser)
		}
		if byeComp != nil {
			winners = append(winners, *byeComp)
		}
		if pairCount == 2 && byeComp == nil {
			semifinalLosers = losers
		}
		if len(winners) == 1 {
			finalMatch = round[0]
		}
		entrants = winners
	}

	c.mu.Lock()
	c.champion = entrants[0].Name
	if finalMatch != nil {
		c.runnerUp = finalMatch.Loser
	}
	c.mu.Unlock()

	if len(semifinalLosers) == 2 {
		third := &Match{
			ID:     uuid.NewString(),
			Round:  roundNum + 1,
			Slot:   0,
			White:  competitorPtr(semifinalLosers[0]),
			Black:  competitorPtr(semifinalLosers[1]),
			Status: MatchPending,
		}
		c.mu.Lock()
		c.thirdPlace = third
		c.mu.Unlock()

		result, err := c.runSeries(ctx, third, semifinalLosers[0], semifinalLosers[1])
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.third = result.Winner
		c.fourth = result.Loser
		c.mu.Unlock()
	}
	return nil
}

func competitorPtr(c match.Competitor) *match.Competitor {
	out := c
	return &out
}
