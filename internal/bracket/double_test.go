package bracket

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNext(t *testing.T, s *Stage) *Pairing {
	t.Helper()
	p, ok := s.NextReady()
	require.True(t, ok, "no ready match")
	return p
}

func report(t *testing.T, s *Stage, p *Pairing, scoreHome, scoreAway int) {
	t.Helper()
	require.NoError(t, s.Report(p.ID, scoreHome, scoreAway))
}

// runHomeWins drains the stage letting the home seat win every match, and
// checks the two-loss elimination invariant along the way.
func runHomeWins(t *testing.T, s *Stage) Placement {
	t.Helper()
	losses := make(map[string]int)
	for i := 0; i < 64; i++ {
		p, ok := s.NextReady()
		if !ok {
			placement, done := s.Standings()
			require.True(t, done, "no ready match but no standings either")
			return placement
		}
		assert.Less(t, losses[p.Home], 2, "%s paired after elimination", p.Home)
		assert.Less(t, losses[p.Away], 2, "%s paired after elimination", p.Away)
		report(t, s, p, 2, 0)
		losses[p.Away]++
	}
	t.Fatalf("bracket did not drain")
	return Placement{}
}

func TestFourPlayersFullRunWithReset(t *testing.T) {
	s, err := New([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	p := mustNext(t, s)
	assert.Equal(t, Pairing{p.ID, BracketWinners, 1, 0, "a", "b"}, *p)
	report(t, s, p, 2, 0) // a

	p = mustNext(t, s)
	assert.Equal(t, "c", p.Home)
	assert.Equal(t, "d", p.Away)
	report(t, s, p, 2, 0) // c

	p = mustNext(t, s) // winners final before the losers bracket opens
	assert.Equal(t, BracketWinners, p.Bracket)
	assert.Equal(t, "a", p.Home)
	assert.Equal(t, "c", p.Away)
	report(t, s, p, 2, 1) // a

	p = mustNext(t, s)
	assert.Equal(t, BracketLosers, p.Bracket)
	assert.Equal(t, "b", p.Home)
	assert.Equal(t, "d", p.Away)
	report(t, s, p, 2, 0) // b, d is out on a second loss

	p = mustNext(t, s) // losers final: winners-final loser drops in at home
	assert.Equal(t, BracketLosers, p.Bracket)
	assert.Equal(t, "c", p.Home)
	assert.Equal(t, "b", p.Away)
	report(t, s, p, 2, 0) // c

	p = mustNext(t, s)
	assert.Equal(t, BracketGrandFinal, p.Bracket)
	assert.Equal(t, "a", p.Home)
	assert.Equal(t, "c", p.Away)

	_, done := s.Standings()
	assert.False(t, done)

	report(t, s, p, 1, 2) // c beats the unbeaten side, forcing a reset

	p = mustNext(t, s)
	assert.Equal(t, BracketReset, p.Bracket)
	assert.Equal(t, "a", p.Home)
	assert.Equal(t, "c", p.Away)
	report(t, s, p, 2, 1) // a takes the reset

	_, ok := s.NextReady()
	assert.False(t, ok)

	placement, done := s.Standings()
	require.True(t, done)
	assert.Equal(t, Placement{Champion: "a", RunnerUp: "c", Third: "b", Fourth: "d"}, placement)
}

func TestGrandFinalWithoutReset(t *testing.T) {
	s, err := New([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	placement := runHomeWins(t, s)
	// Home-wins gives a an unbeaten run, so the one grand final decides it.
	assert.Equal(t, "a", placement.Champion)
	assert.Equal(t, "c", placement.RunnerUp)
	assert.NotEmpty(t, placement.Third)
	assert.NotEmpty(t, placement.Fourth)

	for _, v := range s.Matches() {
		assert.NotEqual(t, BracketReset, v.Bracket, "voided reset final listed")
	}
}

func TestThreePlayersByeCascade(t *testing.T) {
	s, err := New([]string{"A", "B", "C"})
	require.NoError(t, err)

	p := mustNext(t, s)
	assert.Equal(t, "A", p.Home)
	assert.Equal(t, "B", p.Away)
	report(t, s, p, 2, 0) // A

	p = mustNext(t, s) // C advanced on a bye straight to the winners final
	assert.Equal(t, BracketWinners, p.Bracket)
	assert.Equal(t, 2, p.Round)
	assert.Equal(t, "A", p.Home)
	assert.Equal(t, "C", p.Away)
	report(t, s, p, 0, 2) // C

	p = mustNext(t, s) // losers final: A dropped in, B survived the bye round
	assert.Equal(t, BracketLosers, p.Bracket)
	assert.Equal(t, "A", p.Home)
	assert.Equal(t, "B", p.Away)
	report(t, s, p, 2, 1) // A

	p = mustNext(t, s)
	assert.Equal(t, BracketGrandFinal, p.Bracket)
	assert.Equal(t, "C", p.Home)
	assert.Equal(t, "A", p.Away)
	report(t, s, p, 2, 0) // C stays unbeaten

	placement, done := s.Standings()
	require.True(t, done)
	assert.Equal(t, "C", placement.Champion)
	assert.Equal(t, "A", placement.RunnerUp)
	assert.Equal(t, "B", placement.Third)
	assert.Empty(t, placement.Fourth, "fourth place cannot be filled with 3 players")
}

func TestTwoPlayersLoserGetsSecondLife(t *testing.T) {
	s, err := New([]string{"a", "b"})
	require.NoError(t, err)

	p := mustNext(t, s)
	assert.Equal(t, "a", p.Home)
	assert.Equal(t, "b", p.Away)
	report(t, s, p, 0, 2) // b

	p = mustNext(t, s) // the loser drops straight into the grand final
	assert.Equal(t, BracketGrandFinal, p.Bracket)
	assert.Equal(t, "b", p.Home)
	assert.Equal(t, "a", p.Away)
	report(t, s, p, 1, 2) // a evens the score, reset decides

	p = mustNext(t, s)
	assert.Equal(t, BracketReset, p.Bracket)
	report(t, s, p, 2, 0) // b

	placement, done := s.Standings()
	require.True(t, done)
	assert.Equal(t, "b", placement.Champion)
	assert.Equal(t, "a", placement.RunnerUp)
	assert.Empty(t, placement.Third)
	assert.Empty(t, placement.Fourth)
}

func TestFivePlayersPlacesFourReal(t *testing.T) {
	s, err := New([]string{"p1", "p2", "p3", "p4", "p5"})
	require.NoError(t, err)

	placement := runHomeWins(t, s)
	names := []string{placement.Champion, placement.RunnerUp, placement.Third, placement.Fourth}
	seen := make(map[string]bool)
	for _, n := range names {
		assert.NotEmpty(t, n)
		assert.False(t, seen[n], "placement %q repeated", n)
		seen[n] = true
	}
}

func TestEightPlayersDrain(t *testing.T) {
	players := make([]string, 8)
	for i := range players {
		players[i] = fmt.Sprintf("p%d", i+1)
	}
	s, err := New(players)
	require.NoError(t, err)

	placement := runHomeWins(t, s)
	assert.Equal(t, "p1", placement.Champion)

	// 2n-2 matches decide a double elimination without a reset.
	finished := 0
	for _, v := range s.Matches() {
		if v.Done {
			finished++
		}
	}
	assert.Equal(t, 14, finished)
}

func TestReportValidation(t *testing.T) {
	s, err := New([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	err = s.Report("no-such-id", 2, 0)
	assert.ErrorIs(t, err, ErrUnknownMatch)

	p := mustNext(t, s)
	err = s.Report(p.ID, 1, 1)
	assert.ErrorIs(t, err, ErrTiedScore)

	// The winners final exists but has no players yet.
	var pendingID string
	for _, v := range s.Matches() {
		if v.Bracket == BracketWinners && v.Round == 2 {
			pendingID = v.ID
		}
	}
	require.NotEmpty(t, pendingID)
	err = s.Report(pendingID, 2, 0)
	assert.ErrorIs(t, err, ErrMatchNotReady)

	report(t, s, p, 2, 0)
	err = s.Report(p.ID, 0, 2)
	assert.ErrorIs(t, err, ErrMatchFinished)
}

func TestNewValidation(t *testing.T) {
	_, err := New([]string{"solo"})
	assert.Error(t, err)

	_, err = New([]string{"a", "a"})
	assert.Error(t, err)

	_, err = New([]string{"a", ""})
	assert.Error(t, err)
}
