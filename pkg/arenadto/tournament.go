package arenadto

import "time"

// GameResultInfo is one game's outcome inside a series.
type GameResultInfo struct {
	Winner string `json:"winner,omitempty"`
	Loser  string `json:"loser,omitempty"`
	Reason string `json:"reason"`
}

// MatchInfo is one bracket slot and its series.
type MatchInfo struct {
	ID      string           `json:"id"`
	Bracket string           `json:"bracket,omitempty"`
	Round   int              `json:"round"`
	Slot    int              `json:"slot"`
	White   string           `json:"white,omitempty"`
	Black   string           `json:"black,omitempty"`
	Winner  string           `json:"winner,omitempty"`
	Loser   string           `json:"loser,omitempty"`
	Status  string           `json:"status"`
	Games   []GameResultInfo `json:"games,omitempty"`
}

// BracketMatchInfo is one double-elimination bracket slot.
type BracketMatchInfo struct {
	ID        string `json:"id"`
	Bracket   string `json:"bracket"`
	Round     int    `json:"round"`
	Index     int    `json:"index"`
	Home      string `json:"home,omitempty"`
	Away      string `json:"away,omitempty"`
	Done      bool   `json:"done"`
	ScoreHome int    `json:"score_home"`
	ScoreAway int    `json:"score_away"`
	Winner    string `json:"winner,omitempty"`
}

// GameLogInfo is one entry of the append-only game log.
type GameLogInfo struct {
	MatchID string `json:"match_id"`
	Game    int    `json:"game"`
	Winner  string `json:"winner,omitempty"`
	Loser   string `json:"loser,omitempty"`
	Reason  string `json:"reason"`
}

// PairInfo is the head-to-head record of one unordered pair.
type PairInfo struct {
	A     string `json:"a"`
	B     string `json:"b"`
	WinsA int    `json:"wins_a"`
	WinsB int    `json:"wins_b"`
	Draws int    `json:"draws"`
}

// TournamentSnapshot is the live view of the running tournament.
type TournamentSnapshot struct {
	Status      string             `json:"status"`
	Discipline  string             `json:"discipline"`
	TimeLimitMs int                `json:"time_limit_ms"`
	Rounds      [][]MatchInfo      `json:"rounds,omitempty"`
	ThirdPlace  *MatchInfo         `json:"third_place,omitempty"`
	Bracket     []BracketMatchInfo `json:"bracket,omitempty"`
	Current     *MatchInfo         `json:"current,omitempty"`
	Log         []GameLogInfo      `json:"log,omitempty"`
	HeadToHead  []PairInfo         `json:"head_to_head,omitempty"`
	Champion    string             `json:"champion,omitempty"`
	RunnerUp    string             `json:"runner_up,omitempty"`
	Third       string             `json:"third,omitempty"`
	Fourth      string             `json:"fourth,omitempty"`
}

// ArenaSnapshot bundles everything a renderer needs in one payload.
type ArenaSnapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Tournament  *TournamentSnapshot `json:"tournament,omitempty"`
	Game        *GameSnapshot       `json:"game,omitempty"`
}
