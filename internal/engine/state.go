package engine

import (
	"fmt"
	"time"

	"chess-arena/internal/rules"
)

// Status of a single game.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusWaitingHuman Status = "waiting_human"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusFinished     Status = "finished"
)

// allowedTransitions lists every status edge the move loop and the public
// operations may take. Reset and LoadPlayers replace the state wholesale and
// do not go through this table.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusIdle:         {StatusRunning: {}, StatusWaitingHuman: {}},
	StatusRunning:      {StatusRunning: {}, StatusWaitingHuman: {}, StatusPaused: {}, StatusFinished: {}},
	StatusWaitingHuman: {StatusRunning: {}, StatusWaitingHuman: {}, StatusPaused: {}, StatusFinished: {}},
	StatusPaused:       {StatusRunning: {}, StatusWaitingHuman: {}},
	StatusFinished:     {},
}

func validTransition(from, to Status) bool {
	if from == to {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}

// PlayerKind discriminates the PlayerDescriptor variant.
type PlayerKind string

const (
	PlayerBot   PlayerKind = "bot"
	PlayerHuman PlayerKind = "human"
)

// PlayerDescriptor identifies one side of a game.
type PlayerDescriptor struct {
	Kind PlayerKind `json:"kind"`
	// Name is the competitor identity for bots, a display label for humans.
	Name string `json:"name"`
	// Resource locates the compiled agent executable. Bots only.
	Resource string `json:"resource,omitempty"`
}

func (d PlayerDescriptor) IsBot() bool { return d.Kind == PlayerBot }

func (d PlayerDescriptor) validate() error {
	switch d.Kind {
	case PlayerBot:
		if d.Name == "" {
			return fmt.Errorf("bot player name is required")
		}
		if d.Resource == "" {
			return fmt.Errorf("bot player resource is required")
		}
	case PlayerHuman:
	default:
		return fmt.Errorf("unknown player kind %q", d.Kind)
	}
	return nil
}

// Bot builds a bot descriptor.
func Bot(name, resource string) PlayerDescriptor {
	return PlayerDescriptor{Kind: PlayerBot, Name: name, Resource: resource}
}

// Human builds a human descriptor.
func Human(name string) PlayerDescriptor {
	return PlayerDescriptor{Kind: PlayerHuman, Name: name}
}

// MoveRecord is one applied move.
type MoveRecord struct {
	Number    int         `json:"number"`
	Color     rules.Color `json:"color"`
	SAN       string      `json:"san"`
	UCI       string      `json:"uci"`
	Position  string      `json:"position"`
	ElapsedMs int64       `json:"elapsed_ms"`
}

// ResultKind tags the GameResult variant.
type ResultKind string

const (
	ResultNone             ResultKind = "none"
	ResultCheckmate        ResultKind = "checkmate"
	ResultStalemate        ResultKind = "stalemate"
	ResultDrawRepetition   ResultKind = "draw_repetition"
	ResultDrawInsufficient ResultKind = "draw_insufficient"
	ResultDrawFiftyMove    ResultKind = "draw_fifty_move"
	ResultForfeit          ResultKind = "forfeit"
)

// ForfeitReason says why a forfeit was awarded.
type ForfeitReason string

const (
	ForfeitInvalid ForfeitReason = "invalid"
	ForfeitTimeout ForfeitReason = "timeout"
)

// GameResult is the terminal classification of a game. Winner is set for
// checkmate and forfeit; Loser and Forfeit only for forfeit.
type GameResult struct {
	Kind    ResultKind    `json:"kind"`
	Winner  rules.Color   `json:"winner,omitempty"`
	Loser   rules.Color   `json:"loser,omitempty"`
	Forfeit ForfeitReason `json:"forfeit_reason,omitempty"`
}

// Decided reports whether the game reached any terminal classification.
func (r GameResult) Decided() bool { return r.Kind != ResultNone && r.Kind != "" }

// WonBy returns the winning color, false for draws and unfinished games.
func (r GameResult) WonBy() (rules.Color, bool) {
	if r.Winner == "" {
		return "", false
	}
	return r.Winner, true
}

func resultFromVerdict(v *rules.Verdict) GameResult {
	switch v.Kind {
	case rules.VerdictCheckmate:
		return GameResult{Kind: ResultCheckmate, Winner: v.Winner}
	case rules.VerdictStalemate:
		return GameResult{Kind: ResultStalemate}
	case rules.VerdictRepetition:
		return GameResult{Kind: ResultDrawRepetition}
	case rules.VerdictInsufficient:
		return GameResult{Kind: ResultDrawInsufficient}
	case rules.VerdictFiftyMove:
		return GameResult{Kind: ResultDrawFiftyMove}
	}
	return GameResult{Kind: ResultNone}
}

// GameState is the full observable state of one game. The engine owns the
// canonical copy; Snapshot returns deep copies.
type GameState struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Result      GameResult       `json:"result"`
	Position    string           `json:"position"`
	History     []MoveRecord     `json:"history"`
	Turn        rules.Color      `json:"turn"`
	White       PlayerDescriptor `json:"white"`
	Black       PlayerDescriptor `json:"black"`
	LastMoveAt  time.Time        `json:"last_move_at"`
	TimeLimitMs int64            `json:"time_limit_ms"`
}

func (s GameState) clone() GameState {
	out := s
	out.History = append([]MoveRecord(nil), s.History...)
	return out
}

// Player returns the descriptor for the given color.
func (s GameState) Player(c rules.Color) PlayerDescriptor {
	if c == rules.White {
		return s.White
	}
	return s.Black
}

// ThinkTimeMs sums recorded elapsed think-time for one color.
func (s GameState) ThinkTimeMs(c rules.Color) int64 {
	var total int64
	for _, rec := range s.History {
		if rec.Color == c {
			total += rec.ElapsedMs
		}
	}
	return total
}
