package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chess-arena/internal/rules"
)

var (
	// ErrNoGame is returned by operations that need loaded players.
	ErrNoGame = errors.New("no game loaded")
	// ErrBadState is returned when an operation is not valid in the current
	// status.
	ErrBadState = errors.New("operation not allowed in current state")
	// ErrAgentLoad wraps channel startup failures surfaced by LoadPlayers.
	ErrAgentLoad = errors.New("agent load")
)

// DefaultMoveGrace is added on top of the agent's think budget before the
// engine declares a timeout.
const DefaultMoveGrace = time.Second

// Oracle is the slice of the rules library the engine consumes.
type Oracle interface {
	Apply(history []string, move string) (rules.Applied, error)
	Turn(history []string) (rules.Color, error)
	Terminal(history []string) (*rules.Verdict, error)
}

// Channel is one side's isolated move supplier.
type Channel interface {
	Load(ctx context.Context) error
	RequestMove(ctx context.Context, position string, limit time.Duration) (string, error)
	Terminate()
}

// Spawner creates a channel for a bot descriptor.
type Spawner func(d PlayerDescriptor) (Channel, error)

type Config struct {
	// MoveTimeLimit is the think budget handed to agents per move.
	MoveTimeLimit time.Duration
	// MoveGrace extends the budget before a timeout forfeit. Defaults to
	// DefaultMoveGrace.
	MoveGrace time.Duration
	// InterMoveDelay is inserted between two consecutive bot moves.
	InterMoveDelay time.Duration
}

type opKind int

const (
	opAgent opKind = iota
	opHuman
	opDelay
)

// pendingOp is the engine's single cancelable wait slot. Exactly one exists
// per game at any time; arming a new one cancels the previous. The gen tag
// decides whether a resolution may still touch state.
type pendingOp struct {
	gen      uint64
	kind     opKind
	ctx      context.Context
	cancel   context.CancelFunc
	resolved chan struct{}
}

// Engine drives one chess game at a time: it requests moves from agent
// channels or a human, applies them through the oracle, and classifies the
// end. All mutation happens under mu; the move loop is one goroutine per
// Play/Step activation, and every wait it performs is tagged with the
// generation current at issuance so that Pause/Reset/LoadPlayers can revoke
// it without races.
type Engine struct {
	mu     sync.Mutex
	oracle Oracle
	spawn  Spawner
	cfg    Config
	logger *zap.Logger

	state    GameState
	moves    []string
	channels map[rules.Color]Channel
	gen      uint64
	pending  *pendingOp
	stepping bool
	finished chan struct{}
}

func NewEngine(oracle Oracle, spawn Spawner, cfg Config, logger *zap.Logger) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if spawn == nil {
		return nil, fmt.Errorf("spawner is required")
	}
	if cfg.MoveTimeLimit <= 0 {
		return nil, fmt.Errorf("move time limit must be > 0")
	}
	if cfg.MoveGrace <= 0 {
		cfg.MoveGrace = DefaultMoveGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		oracle:   oracle,
		spawn:    spawn,
		cfg:      cfg,
		logger:   logger,
		channels: make(map[rules.Color]Channel),
	}, nil
}

// Snapshot returns a deep copy of the current game state.
func (e *Engine) Snapshot() GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// LoadPlayers terminates any existing channels, spawns and loads channels
// for the bot sides (both concurrently, each bounded by the channel's load
// timeout), and installs a fresh idle game. Load failures surface wrapped in
// ErrAgentLoad; on failure no game is loaded.
func (e *Engine) LoadPlayers(ctx context.Context, white, black PlayerDescriptor) error {
	if err := white.validate(); err != nil {
		return fmt.Errorf("white: %w", err)
	}
	if err := black.validate(); err != nil {
		return fmt.Errorf("black: %w", err)
	}

	e.mu.Lock()
	e.revokeLocked()
	old := e.channels
	e.channels = make(map[rules.Color]Channel)
	e.state = GameState{}
	e.moves = nil
	e.finished = nil
	e.mu.Unlock()

	for _, ch := range old {
		ch.Terminate()
	}

	descriptors := map[rules.Color]PlayerDescriptor{rules.White: white, rules.Black: black}
	channels := make(map[rules.Color]Channel)
	g, gctx := errgroup.WithContext(ctx)
	for side, d := range descriptors {
		if !d.IsBot() {
			continue
		}
		ch, err := e.spawn(d)
		if err != nil {
			terminateAll(channels)
			return fmt.Errorf("%w: spawn %s: %v", ErrAgentLoad, d.Name, err)
		}
		channels[side] = ch
		g.Go(func() error {
			if err := ch.Load(gctx); err != nil {
				return fmt.Errorf("load %s: %w", d.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		terminateAll(channels)
		return fmt.Errorf("%w: %v", ErrAgentLoad, err)
	}

	e.mu.Lock()
	e.channels = channels
	e.state = e.newGameLocked(white, black)
	e.finished = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("players_loaded",
		zap.String("game_id", e.Snapshot().ID),
		zap.String("white", white.Name),
		zap.String("black", black.Name))
	return nil
}

func terminateAll(channels map[rules.Color]Channel) {
	for _, ch := range channels {
		ch.Terminate()
	}
}

func (e *Engine) newGameLocked(white, black PlayerDescriptor) GameState {
	e.moves = nil
	return GameState{
		ID:          uuid.NewString(),
		Status:      StatusIdle,
		Result:      GameResult{Kind: ResultNone},
		Position:    rules.StartPosition(),
		Turn:        rules.White,
		White:       white,
		Black:       black,
		TimeLimitMs: e.cfg.MoveTimeLimit.Milliseconds(),
	}
}

// Play starts or resumes the move loop. Valid from idle and paused.
func (e *Engine) Play() error {
	return e.activate(false)
}

// Step executes exactly one move and settles into paused. A human turn
// first waits for its one submission.
func (e *Engine) Step() error {
	return e.activate(true)
}

func (e *Engine) activate(stepping bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.ID == "" {
		return ErrNoGame
	}
	if e.state.Status != StatusIdle && e.state.Status != StatusPaused {
		return fmt.Errorf("%w: %s", ErrBadState, e.state.Status)
	}

	e.revokeLocked()
	e.stepping = stepping
	gen := e.gen

	if e.state.Player(e.state.Turn).IsBot() {
		e.setStatusLocked(StatusRunning)
	} else {
		e.setStatusLocked(StatusWaitingHuman)
	}
	go e.loop(gen)
	return nil
}

// Pause halts the loop from running/waiting_human. The outstanding request
// or wait is cancelled; if its result still arrives, the generation check
// discards it.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != StatusRunning && e.state.Status != StatusWaitingHuman {
		return fmt.Errorf("%w: %s", ErrBadState, e.state.Status)
	}
	e.revokeLocked()
	e.setStatusLocked(StatusPaused)
	return nil
}

// Reset cancels everything and replaces the game with a fresh idle one,
// keeping players and channels.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.ID == "" {
		return ErrNoGame
	}
	e.revokeLocked()
	e.state = e.newGameLocked(e.state.White, e.state.Black)
	e.finished = make(chan struct{})
	e.logger.Info("game_reset", zap.String("game_id", e.state.ID))
	return nil
}

// SubmitHumanMove validates and applies a human move while one is awaited.
// It reports success as a bool and never mutates state on failure.
func (e *Engine) SubmitHumanMove(from, to, promotion string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := e.pending
	if op == nil || op.kind != opHuman || op.gen != e.gen {
		return false
	}
	if e.state.Status != StatusWaitingHuman {
		return false
	}

	move := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	applied, err := e.oracle.Apply(e.moves, move)
	if err != nil {
		e.logger.Debug("human_move_rejected",
			zap.String("game_id", e.state.ID),
			zap.String("move", move))
		return false
	}

	e.appendMoveLocked(applied, 0)
	e.pending = nil
	close(op.resolved)
	return true
}

// WaitFinished blocks until the current game finishes and returns its
// result.
func (e *Engine) WaitFinished(ctx context.Context) (GameResult, error) {
	e.mu.Lock()
	if e.state.ID == "" {
		e.mu.Unlock()
		return GameResult{}, ErrNoGame
	}
	done := e.finished
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return GameResult{}, ctx.Err()
	case <-done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state.Result, nil
	}
}

// revokeLocked supersedes every outstanding wait: the generation moves on
// and the pending slot, if armed, is cancelled.
func (e *Engine) revokeLocked() {
	e.gen++
	if e.pending != nil {
		e.pending.cancel()
		e.pending = nil
	}
}

func (e *Engine) armLocked(kind opKind) *pendingOp {
	if e.pending != nil {
		e.pending.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	op := &pendingOp{
		gen:      e.gen,
		kind:     kind,
		ctx:      ctx,
		cancel:   cancel,
		resolved: make(chan struct{}),
	}
	e.pending = op
	return op
}

func (e *Engine) setStatusLocked(next Status) {
	if e.state.Status == next {
		return
	}
	if !validTransition(e.state.Status, next) {
		e.logger.Error("invalid_status_transition",
			zap.String("game_id", e.state.ID),
			zap.String("from", string(e.state.Status)),
			zap.String("to", string(next)))
	}
	e.state.Status = next
}

func (e *Engine) appendMoveLocked(applied rules.Applied, elapsedMs int64) {
	number := (len(e.state.History)+1)/2 + 1
	rec := MoveRecord{
		Number:    number,
		Color:     e.state.Turn,
		SAN:       applied.SAN,
		UCI:       applied.UCI,
		Position:  applied.FEN,
		ElapsedMs: elapsedMs,
	}
	e.state.History = append(e.state.History, rec)
	e.moves = append(e.moves, applied.UCI)
	e.state.Position = applied.FEN
	e.state.Turn = e.state.Turn.Opponent()
	e.state.LastMoveAt = time.Now()
}

func (e *Engine) finishLocked(result GameResult) {
	e.state.Result = result
	e.setStatusLocked(StatusFinished)
	if e.pending != nil {
		e.pending.cancel()
		e.pending = nil
	}
	if e.finished != nil {
		close(e.finished)
	}
	e.logger.Info("game_finished",
		zap.String("game_id", e.state.ID),
		zap.String("kind", string(result.Kind)),
		zap.String("winner", string(result.Winner)),
		zap.String("forfeit_reason", string(result.Forfeit)),
		zap.Int("moves", len(e.state.History)))
}

type moveReply struct {
	move string
	err  error
}

// loop runs moves until the game ends, the activation is superseded, or a
// single step completes. Invariant: state is only touched while holding mu
// with e.gen still equal to the activation's gen.
func (e *Engine) loop(gen uint64) {
	for {
		e.mu.Lock()
		if gen != e.gen || e.state.Status == StatusFinished {
			e.mu.Unlock()
			return
		}
		side := e.state.Turn
		player := e.state.Player(side)
		position := e.state.Position
		history := append([]string(nil), e.moves...)
		stepping := e.stepping
		ch := e.channels[side]

		if !player.IsBot() {
			op := e.armLocked(opHuman)
			e.mu.Unlock()
			select {
			case <-op.resolved:
				op.cancel()
			case <-op.ctx.Done():
				return
			}
			cont, delay := e.settle(gen, stepping, false)
			if !cont {
				return
			}
			if !e.waitDelay(gen, delay) {
				return
			}
			continue
		}

		op := e.armLocked(opAgent)
		e.mu.Unlock()

		if ch == nil {
			// Bot without a channel means LoadPlayers was bypassed.
			e.resolveFault(gen, side, ForfeitInvalid)
			return
		}

		reply := make(chan moveReply, 1)
		started := time.Now()
		go func() {
			mv, err := ch.RequestMove(op.ctx, position, e.cfg.MoveTimeLimit)
			reply <- moveReply{move: mv, err: err}
		}()

		timer := time.NewTimer(e.cfg.MoveTimeLimit + e.cfg.MoveGrace)
		var res moveReply
		timedOut := false
		select {
		case res = <-reply:
		case <-timer.C:
			timedOut = true
		case <-op.ctx.Done():
			timer.Stop()
			return
		}
		timer.Stop()
		// The slot is consumed; a reply still in flight lands in the
		// buffered channel and is discarded.
		op.cancel()
		elapsed := time.Since(started)

		if timedOut {
			e.logger.Warn("agent_move_timeout",
				zap.String("game_id", e.gameID()),
				zap.String("side", string(side)))
			e.resolveFault(gen, side, ForfeitTimeout)
			return
		}
		if res.err != nil {
			e.logger.Warn("agent_move_failed",
				zap.String("game_id", e.gameID()),
				zap.String("side", string(side)),
				zap.Error(res.err))
			e.resolveFault(gen, side, ForfeitInvalid)
			return
		}

		cont, delay := e.applyAgentMove(gen, side, history, res.move, elapsed, stepping)
		if !cont {
			return
		}
		if !e.waitDelay(gen, delay) {
			return
		}
	}
}

func (e *Engine) gameID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ID
}

// resolveFault finishes the game with a forfeit against side, unless the
// activation was superseded meanwhile.
func (e *Engine) resolveFault(gen uint64, side rules.Color, reason ForfeitReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state.Status == StatusFinished {
		return
	}
	e.finishLocked(GameResult{
		Kind:    ResultForfeit,
		Winner:  side.Opponent(),
		Loser:   side,
		Forfeit: reason,
	})
}

// applyAgentMove validates the agent's reply against the oracle and appends
// it. An unparseable or illegal move forfeits the mover.
func (e *Engine) applyAgentMove(gen uint64, side rules.Color, history []string, move string, elapsed time.Duration, stepping bool) (bool, time.Duration) {
	e.mu.Lock()
	if gen != e.gen || e.state.Status == StatusFinished {
		e.mu.Unlock()
		return false, 0
	}
	e.pending = nil

	applied, err := e.oracle.Apply(history, move)
	if err != nil {
		e.logger.Warn("agent_move_invalid",
			zap.String("game_id", e.state.ID),
			zap.String("side", string(side)),
			zap.String("move", move))
		e.finishLocked(GameResult{
			Kind:    ResultForfeit,
			Winner:  side.Opponent(),
			Loser:   side,
			Forfeit: ForfeitInvalid,
		})
		e.mu.Unlock()
		return false, 0
	}

	e.appendMoveLocked(applied, elapsed.Milliseconds())
	e.logger.Debug("move_applied",
		zap.String("game_id", e.state.ID),
		zap.String("side", string(side)),
		zap.String("san", applied.SAN),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()))
	e.mu.Unlock()

	return e.settle(gen, stepping, true)
}

// settle runs the shared post-move tail: terminal check, next status, and
// whether a bot-to-bot delay is due. It reports whether the loop continues.
func (e *Engine) settle(gen uint64, stepping, moverWasBot bool) (bool, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state.Status == StatusFinished {
		return false, 0
	}

	verdict, err := e.oracle.Terminal(e.moves)
	if err != nil {
		e.logger.Error("terminal_check_failed",
			zap.String("game_id", e.state.ID),
			zap.Error(err))
	}
	if verdict != nil {
		e.finishLocked(resultFromVerdict(verdict))
		return false, 0
	}

	if stepping {
		e.setStatusLocked(StatusPaused)
		return false, 0
	}

	next := e.state.Player(e.state.Turn)
	if next.IsBot() {
		e.setStatusLocked(StatusRunning)
		if moverWasBot && e.cfg.InterMoveDelay > 0 {
			return true, e.cfg.InterMoveDelay
		}
		return true, 0
	}
	e.setStatusLocked(StatusWaitingHuman)
	return true, 0
}

// waitDelay parks the loop for the inter-move delay, cancelable like any
// other pending operation. Returns false if the activation was superseded.
func (e *Engine) waitDelay(gen uint64, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	e.mu.Lock()
	if gen != e.gen || e.state.Status == StatusFinished {
		e.mu.Unlock()
		return false
	}
	op := e.armLocked(opDelay)
	e.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		op.cancel()
	case <-op.ctx.Done():
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return false
	}
	if e.pending == op {
		e.pending = nil
	}
	return true
}
