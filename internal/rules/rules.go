package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrInvalidMove reports a move that could not be decoded or is illegal in
// the current position.
var ErrInvalidMove = errors.New("invalid move")

// Color of a side to move.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// VerdictKind classifies a terminal position.
type VerdictKind string

const (
	VerdictCheckmate    VerdictKind = "checkmate"
	VerdictStalemate    VerdictKind = "stalemate"
	VerdictRepetition   VerdictKind = "repetition"
	VerdictInsufficient VerdictKind = "insufficient_material"
	VerdictFiftyMove    VerdictKind = "fifty_move"
)

// Verdict is the oracle's terminal classification. Winner is set only for
// checkmate.
type Verdict struct {
	Kind   VerdictKind
	Winner Color
}

// Applied describes one successfully applied move.
type Applied struct {
	FEN string
	SAN string
	UCI string
}

// Oracle answers legality, turn, and terminal-state questions. Positions are
// identified by the full move history (UCI codes from the start position);
// repetition and fifty-move draws are invisible to a lone FEN.
type Oracle struct{}

func NewOracle() *Oracle { return &Oracle{} }

// StartPosition returns the serialized start position.
func StartPosition() string {
	return nchess.NewGame().FEN()
}

func replay(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range history {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}

// Apply validates move (a UCI code) against the position reached by history
// and returns the resulting position plus both notations. Undecodable and
// illegal moves return ErrInvalidMove.
func (o *Oracle) Apply(history []string, move string) (Applied, error) {
	game, err := replay(history)
	if err != nil {
		return Applied{}, err
	}
	pos := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(move)))
	if err != nil {
		return Applied{}, fmt.Errorf("%w: %q", ErrInvalidMove, move)
	}
	if err := game.Move(decoded, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %q", ErrInvalidMove, move)
	}
	return Applied{
		FEN: game.FEN(),
		SAN: nchess.AlgebraicNotation{}.Encode(pos, decoded),
		UCI: decoded.String(),
	}, nil
}

// Turn reports the side to move after history.
func (o *Oracle) Turn(history []string) (Color, error) {
	game, err := replay(history)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

// Terminal classifies the position reached by history. It returns nil when
// the game continues. Threefold-repetition and fifty-move draws are claimed
// as soon as they become available; agents have no draw-offer channel.
func (o *Oracle) Terminal(history []string) (*Verdict, error) {
	game, err := replay(history)
	if err != nil {
		return nil, err
	}
	if game.Outcome() == nchess.NoOutcome {
		for _, m := range game.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				if err := game.Draw(m); err != nil {
					return nil, fmt.Errorf("claim draw: %w", err)
				}
				break
			}
		}
	}
	if game.Outcome() == nchess.NoOutcome {
		return nil, nil
	}
	return verdictFrom(game), nil
}

func verdictFrom(game *nchess.Game) *Verdict {
	switch game.Method() {
	case nchess.Checkmate:
		return &Verdict{Kind: VerdictCheckmate, Winner: winnerFrom(game.Outcome())}
	case nchess.Stalemate:
		return &Verdict{Kind: VerdictStalemate}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return &Verdict{Kind: VerdictRepetition}
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return &Verdict{Kind: VerdictFiftyMove}
	case nchess.InsufficientMaterial:
		return &Verdict{Kind: VerdictInsufficient}
	}
	if w := winnerFrom(game.Outcome()); w != "" {
		return &Verdict{Kind: VerdictCheckmate, Winner: w}
	}
	return &Verdict{Kind: VerdictStalemate}
}

func winnerFrom(outcome nchess.Outcome) Color {
	switch outcome {
	case nchess.WhiteWon:
		return White
	case nchess.BlackWon:
		return Black
	}
	return ""
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}
