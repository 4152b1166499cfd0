// Package arenadto holds the wire types published for renderers and other
// observers. The core never reads these back; they are one-way snapshots.
package arenadto

import "time"

// PlayerInfo identifies one side of a game.
type PlayerInfo struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// MoveInfo is one played move.
type MoveInfo struct {
	Number    int    `json:"number"`
	Color     string `json:"color"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Position  string `json:"position"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// ResultInfo classifies a finished game.
type ResultInfo struct {
	Kind          string `json:"kind"`
	Winner        string `json:"winner,omitempty"`
	Loser         string `json:"loser,omitempty"`
	ForfeitReason string `json:"forfeit_reason,omitempty"`
}

// GameSnapshot is the live view of one game.
type GameSnapshot struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Position    string      `json:"position"`
	Turn        string      `json:"turn"`
	White       PlayerInfo  `json:"white"`
	Black       PlayerInfo  `json:"black"`
	Moves       []MoveInfo  `json:"moves"`
	Result      *ResultInfo `json:"result,omitempty"`
	TimeLimitMs int64       `json:"time_limit_ms"`
	LastMoveAt  time.Time   `json:"last_move_at,omitempty"`
}
