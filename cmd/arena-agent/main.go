// arena-agent is a baseline competitor: it answers every move request with a
// uniformly random legal move. It doubles as a reference for the stdio
// protocol an agent executable must speak.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"chess-arena/pkg/agentproto"
)

func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	in := bufio.NewReader(os.Stdin)
	out := json.NewEncoder(os.Stdout)

	for {
		line, err := in.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			var msg agentproto.Message
			if json.Unmarshal([]byte(trimmed), &msg) == nil {
				if reply, ok := handle(rng, msg); ok {
					_ = out.Encode(reply)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func handle(rng *rand.Rand, msg agentproto.Message) (agentproto.Message, bool) {
	switch msg.Type {
	case agentproto.TypeLoad:
		return agentproto.Message{Type: agentproto.TypeReady}, true
	case agentproto.TypeMoveRequest:
		move, err := randomMove(rng, msg.Position)
		if err != nil {
			return agentproto.Message{Type: agentproto.TypeAgentError, Message: err.Error()}, true
		}
		return agentproto.Message{Type: agentproto.TypeMove, Move: move}, true
	default:
		// arena-side chatter, nothing to answer
		return agentproto.Message{}, false
	}
}

func randomMove(rng *rand.Rand, fen string) (string, error) {
	fenOpt, err := nchess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("bad position: %v", err)
	}
	game := nchess.NewGame(fenOpt)
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return "", errors.New("no legal moves")
	}
	mv := moves[rng.Intn(len(moves))]
	return nchess.UCINotation{}.Encode(game.Position(), &mv), nil
}
