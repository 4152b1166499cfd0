package tournament

import (
	"strings"

	"chess-arena/internal/bracket"
	"chess-arena/internal/match"
)

// Status of the whole tournament.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// Discipline selects the bracket shape.
type Discipline string

const (
	SingleElimination Discipline = "single"
	DoubleElimination Discipline = "double"
)

// MatchStatus of one tournament match.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchRunning  MatchStatus = "running"
	MatchFinished MatchStatus = "finished"
	MatchBye      MatchStatus = "bye"
)

// Match is one bracket slot: a best-of-3 series between two competitors, or
// a bye. White and Black are the game-1 colors; a bye match has no Black.
type Match struct {
	ID      string              `json:"id"`
	Bracket string              `json:"bracket,omitempty"`
	Round   int                 `json:"round"`
	Slot    int                 `json:"slot"`
	White   *match.Competitor   `json:"white,omitempty"`
	Black   *match.Competitor   `json:"black,omitempty"`
	Games   []match.MatchResult `json:"games,omitempty"`
	Winner  string              `json:"winner,omitempty"`
	Loser   string              `json:"loser,omitempty"`
	Status  MatchStatus         `json:"status"`
}

func (m *Match) clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	if m.White != nil {
		w := *m.White
		out.White = &w
	}
	if m.Black != nil {
		b := *m.Black
		out.Black = &b
	}
	out.Games = append([]match.MatchResult(nil), m.Games...)
	return &out
}

// GameLogEntry is one completed game in the append-only tournament log.
type GameLogEntry struct {
	MatchID string            `json:"match_id"`
	Game    int               `json:"game"`
	Result  match.MatchResult `json:"result"`
}

// PairRecord accumulates the head-to-head history of one unordered pair.
// A is the lexicographically smaller name.
type PairRecord struct {
	A     string `json:"a"`
	B     string `json:"b"`
	WinsA int    `json:"wins_a"`
	WinsB int    `json:"wins_b"`
	Draws int    `json:"draws"`
}

// Wins returns the games the named competitor won against the other.
func (r PairRecord) Wins(name string) int {
	if name == r.A {
		return r.WinsA
	}
	if name == r.B {
		return r.WinsB
	}
	return 0
}

// Games counts every game the pair has played.
func (r PairRecord) Games() int { return r.WinsA + r.WinsB + r.Draws }

// PairKey builds the order-independent head-to-head key.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// State is a deep-copied view of the tournament.
type State struct {
	Status      Status                `json:"status"`
	Discipline  Discipline            `json:"discipline"`
	TimeLimitMs int                   `json:"time_limit_ms"`
	Rounds      [][]*Match            `json:"rounds,omitempty"`
	ThirdPlace  *Match                `json:"third_place,omitempty"`
	Bracket     []bracket.MatchView   `json:"bracket,omitempty"`
	Current     *Match                `json:"current,omitempty"`
	Log         []GameLogEntry        `json:"log"`
	HeadToHead  map[string]PairRecord `json:"head_to_head"`
	Champion    string                `json:"champion,omitempty"`
	RunnerUp    string                `json:"runner_up,omitempty"`
	Third       string                `json:"third,omitempty"`
	Fourth      string                `json:"fourth,omitempty"`
}
