package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"chess-arena/internal/rules"
)

// scriptChannel is an in-process Channel fake. It replies with scripted
// moves in order, optionally blocking until released first.
type scriptChannel struct {
	mu         sync.Mutex
	script     []string
	next       int
	loadErr    error
	moveErr    error
	block      chan struct{}
	requests   int
	terminated int
}

func (c *scriptChannel) Load(ctx context.Context) error { return c.loadErr }

func (c *scriptChannel) RequestMove(ctx context.Context, position string, limit time.Duration) (string, error) {
	c.mu.Lock()
	c.requests++
	block := c.block
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.moveErr != nil {
		return "", c.moveErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next >= len(c.script) {
		return "", fmt.Errorf("script exhausted")
	}
	move := c.script[c.next]
	c.next++
	return move, nil
}

func (c *scriptChannel) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated++
}

func (c *scriptChannel) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *scriptChannel) terminateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

type fixture struct {
	engine *Engine
	white  *scriptChannel
	black  *scriptChannel
	spawns int
}

func newFixture(t *testing.T, cfg Config, white, black PlayerDescriptor, whiteCh, blackCh *scriptChannel) *fixture {
	t.Helper()
	f := &fixture{white: whiteCh, black: blackCh}
	spawn := func(d PlayerDescriptor) (Channel, error) {
		f.spawns++
		switch d.Name {
		case white.Name:
			if whiteCh == nil {
				return nil, fmt.Errorf("no channel for %s", d.Name)
			}
			return whiteCh, nil
		case black.Name:
			if blackCh == nil {
				return nil, fmt.Errorf("no channel for %s", d.Name)
			}
			return blackCh, nil
		}
		return nil, fmt.Errorf("unexpected descriptor %q", d.Name)
	}

	eng, err := NewEngine(rules.NewOracle(), spawn, cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.LoadPlayers(context.Background(), white, black); err != nil {
		t.Fatalf("load players: %v", err)
	}
	f.engine = eng
	return f
}

func botCfg() Config {
	return Config{MoveTimeLimit: 2 * time.Second, MoveGrace: 500 * time.Millisecond}
}

func waitStatus(t *testing.T, e *Engine, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never became %s, now %s", want, e.Snapshot().Status)
}

func mustFinish(t *testing.T, e *Engine) GameResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.WaitFinished(ctx)
	if err != nil {
		t.Fatalf("wait finished: %v", err)
	}
	return result
}

func TestBotGameEndsInCheckmate(t *testing.T) {
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		&scriptChannel{script: []string{"f2f3", "g2g4"}},
		&scriptChannel{script: []string{"e7e5", "d8h4"}})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	result := mustFinish(t, f.engine)

	if result.Kind != ResultCheckmate {
		t.Fatalf("result = %+v, want checkmate", result)
	}
	if result.Winner != rules.Black {
		t.Fatalf("winner = %s, want black", result.Winner)
	}

	state := f.engine.Snapshot()
	if state.Status != StatusFinished {
		t.Fatalf("status = %s, want finished", state.Status)
	}
	if len(state.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(state.History))
	}
	wantNumbers := []int{1, 2, 2, 3}
	for i, rec := range state.History {
		if rec.Number != wantNumbers[i] {
			t.Fatalf("move %d number = %d, want %d", i, rec.Number, wantNumbers[i])
		}
	}
	if state.History[3].SAN != "Qh4#" {
		t.Fatalf("last SAN = %q, want Qh4#", state.History[3].SAN)
	}
}

func TestAgentTimeoutForfeits(t *testing.T) {
	cfg := Config{MoveTimeLimit: 100 * time.Millisecond, MoveGrace: 100 * time.Millisecond}
	blocked := &scriptChannel{block: make(chan struct{})}
	f := newFixture(t, cfg,
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		blocked, &scriptChannel{})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	result := mustFinish(t, f.engine)

	if result.Kind != ResultForfeit || result.Forfeit != ForfeitTimeout {
		t.Fatalf("result = %+v, want timeout forfeit", result)
	}
	if result.Loser != rules.White || result.Winner != rules.Black {
		t.Fatalf("forfeit sides wrong: %+v", result)
	}
	if got := len(f.engine.Snapshot().History); got != 0 {
		t.Fatalf("history length = %d, want 0 after timeout", got)
	}
}

func TestAgentInvalidMoveForfeits(t *testing.T) {
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		&scriptChannel{script: []string{"zz99"}}, &scriptChannel{})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	result := mustFinish(t, f.engine)

	if result.Kind != ResultForfeit || result.Forfeit != ForfeitInvalid {
		t.Fatalf("result = %+v, want invalid forfeit", result)
	}
	if result.Loser != rules.White {
		t.Fatalf("loser = %s, want white", result.Loser)
	}
}

func TestAgentFaultForfeits(t *testing.T) {
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		&scriptChannel{moveErr: fmt.Errorf("agent crashed")}, &scriptChannel{})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	result := mustFinish(t, f.engine)

	if result.Kind != ResultForfeit || result.Forfeit != ForfeitInvalid {
		t.Fatalf("result = %+v, want invalid forfeit", result)
	}
}

func TestPauseDiscardsLateReply(t *testing.T) {
	blocked := &scriptChannel{script: []string{"e2e4"}, block: make(chan struct{})}
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		blocked, &scriptChannel{})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	// Wait until the request is actually in flight.
	deadline := time.Now().Add(2 * time.Second)
	for blocked.requestCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if blocked.requestCount() == 0 {
		t.Fatalf("move request never issued")
	}

	if err := f.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(blocked.block) // late reply arrives after cancellation
	time.Sleep(100 * time.Millisecond)

	state := f.engine.Snapshot()
	if state.Status != StatusPaused {
		t.Fatalf("status = %s, want paused", state.Status)
	}
	if len(state.History) != 0 {
		t.Fatalf("late reply mutated state: %d records", len(state.History))
	}

	if err := f.engine.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(f.engine.Snapshot().History); got != 0 {
		t.Fatalf("history length = %d after reset", got)
	}
}

func TestStepExecutesExactlyOneMove(t *testing.T) {
	white := &scriptChannel{script: []string{"e2e4"}}
	black := &scriptChannel{script: []string{"e7e5"}}
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"), white, black)

	if err := f.engine.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	waitStatus(t, f.engine, StatusPaused)

	state := f.engine.Snapshot()
	if len(state.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(state.History))
	}
	if black.requestCount() != 0 {
		t.Fatalf("black was asked to move during a single step")
	}

	// A second step advances by one more move.
	if err := f.engine.Step(); err != nil {
		t.Fatalf("second step: %v", err)
	}
	waitStatus(t, f.engine, StatusPaused)
	if got := len(f.engine.Snapshot().History); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}
}

func TestHumanMoveFlow(t *testing.T) {
	black := &scriptChannel{script: []string{"e7e5"}}
	f := newFixture(t, botCfg(), Human("guest"), Bot("beta", "bin/beta"), nil, black)

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	waitStatus(t, f.engine, StatusWaitingHuman)

	submitted := false
	deadline := time.Now().Add(2 * time.Second)
	for !submitted && time.Now().Before(deadline) {
		submitted = f.engine.SubmitHumanMove("e2", "e4", "")
		if !submitted {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !submitted {
		t.Fatalf("human move never accepted")
	}

	// Black answers, then it is the human's turn again.
	waitStatus(t, f.engine, StatusWaitingHuman)
	state := f.engine.Snapshot()
	if len(state.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(state.History))
	}
	if state.History[0].ElapsedMs != 0 {
		t.Fatalf("human move elapsed = %d, want 0", state.History[0].ElapsedMs)
	}
	if state.History[0].SAN != "e4" || state.History[1].SAN != "e5" {
		t.Fatalf("history = %q %q", state.History[0].SAN, state.History[1].SAN)
	}
}

func TestSubmitHumanMoveRejectsIllegal(t *testing.T) {
	f := newFixture(t, botCfg(), Human("guest"), Bot("beta", "bin/beta"), nil, &scriptChannel{})

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	waitStatus(t, f.engine, StatusWaitingHuman)
	time.Sleep(50 * time.Millisecond) // let the wait slot arm

	before := f.engine.Snapshot()
	if f.engine.SubmitHumanMove("e2", "e5", "") {
		t.Fatalf("illegal move accepted")
	}
	after := f.engine.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected move changed state:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSubmitHumanMoveWithoutPendingWait(t *testing.T) {
	f := newFixture(t, botCfg(), Human("guest"), Bot("beta", "bin/beta"), nil, &scriptChannel{})

	if f.engine.SubmitHumanMove("e2", "e4", "") {
		t.Fatalf("submit accepted while idle")
	}
}

func TestPlayAndPauseStateGuards(t *testing.T) {
	blocked := &scriptChannel{block: make(chan struct{})}
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"), blocked, &scriptChannel{})

	if err := f.engine.Pause(); !errors.Is(err, ErrBadState) {
		t.Fatalf("pause from idle: err = %v, want ErrBadState", err)
	}
	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := f.engine.Play(); !errors.Is(err, ErrBadState) {
		t.Fatalf("play while running: err = %v, want ErrBadState", err)
	}
	if err := f.engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := f.engine.Pause(); !errors.Is(err, ErrBadState) {
		t.Fatalf("second pause: err = %v, want ErrBadState", err)
	}
}

func TestResetReplacesGameAndKeepsChannels(t *testing.T) {
	white := &scriptChannel{script: []string{"e2e4", "d2d4"}}
	black := &scriptChannel{script: []string{"e7e5", "d7d5"}}
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"), white, black)

	if err := f.engine.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	waitStatus(t, f.engine, StatusPaused)
	firstID := f.engine.Snapshot().ID

	if err := f.engine.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	state := f.engine.Snapshot()
	if state.Status != StatusIdle || len(state.History) != 0 {
		t.Fatalf("state after reset: %s, %d records", state.Status, len(state.History))
	}
	if state.ID == firstID {
		t.Fatalf("reset kept game id")
	}
	if f.spawns != 2 {
		t.Fatalf("spawns = %d, want 2 (reset must keep channels)", f.spawns)
	}
	if white.terminateCount() != 0 {
		t.Fatalf("reset terminated a channel")
	}

	// The fresh game plays from move one.
	if err := f.engine.Step(); err != nil {
		t.Fatalf("step after reset: %v", err)
	}
	waitStatus(t, f.engine, StatusPaused)
	if got := len(f.engine.Snapshot().History); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}
}

func TestLoadPlayersFailureSurfaces(t *testing.T) {
	spawn := func(d PlayerDescriptor) (Channel, error) {
		return nil, fmt.Errorf("compile pipeline broke")
	}
	eng, err := NewEngine(rules.NewOracle(), spawn, botCfg(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	err = eng.LoadPlayers(context.Background(), Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"))
	if !errors.Is(err, ErrAgentLoad) {
		t.Fatalf("err = %v, want ErrAgentLoad", err)
	}
	if err := eng.Play(); !errors.Is(err, ErrNoGame) {
		t.Fatalf("play after failed load: err = %v, want ErrNoGame", err)
	}
}

func TestLoadFailureTerminatesSpawnedChannels(t *testing.T) {
	good := &scriptChannel{}
	bad := &scriptChannel{loadErr: fmt.Errorf("bundle missing")}
	spawn := func(d PlayerDescriptor) (Channel, error) {
		if d.Name == "alpha" {
			return good, nil
		}
		return bad, nil
	}
	eng, err := NewEngine(rules.NewOracle(), spawn, botCfg(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	err = eng.LoadPlayers(context.Background(), Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"))
	if !errors.Is(err, ErrAgentLoad) {
		t.Fatalf("err = %v, want ErrAgentLoad", err)
	}
	if good.terminateCount() == 0 {
		t.Fatalf("surviving channel was not terminated")
	}
}

func TestInterMoveDelayBetweenBots(t *testing.T) {
	cfg := botCfg()
	cfg.InterMoveDelay = 150 * time.Millisecond
	f := newFixture(t, cfg,
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"),
		&scriptChannel{script: []string{"f2f3", "g2g4"}},
		&scriptChannel{script: []string{"e7e5", "d8h4"}})

	start := time.Now()
	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	mustFinish(t, f.engine)

	// Three bot-to-bot gaps in a four-move game.
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("game finished in %v, inter-move delay not applied", elapsed)
	}
}

func TestNoDelayAroundHumanTurns(t *testing.T) {
	cfg := botCfg()
	cfg.InterMoveDelay = 400 * time.Millisecond
	black := &scriptChannel{script: []string{"e7e5"}}
	f := newFixture(t, cfg, Human("guest"), Bot("beta", "bin/beta"), nil, black)

	if err := f.engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	waitStatus(t, f.engine, StatusWaitingHuman)

	submitted := false
	deadline := time.Now().Add(2 * time.Second)
	for !submitted && time.Now().Before(deadline) {
		submitted = f.engine.SubmitHumanMove("e2", "e4", "")
		if !submitted {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !submitted {
		t.Fatalf("human move never accepted")
	}
	start := time.Now()
	waitStatus(t, f.engine, StatusWaitingHuman)
	// human -> bot and bot -> human both skip the delay
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("round trip took %v, delay applied around human turn", elapsed)
	}
	if got := len(f.engine.Snapshot().History); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}
}

func TestWaitFinishedWithoutGame(t *testing.T) {
	eng, err := NewEngine(rules.NewOracle(), func(d PlayerDescriptor) (Channel, error) {
		return &scriptChannel{}, nil
	}, botCfg(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.WaitFinished(context.Background()); !errors.Is(err, ErrNoGame) {
		t.Fatalf("err = %v, want ErrNoGame", err)
	}
}

func TestLoadPlayersTerminatesPreviousChannels(t *testing.T) {
	white := &scriptChannel{}
	black := &scriptChannel{}
	f := newFixture(t, botCfg(),
		Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta"), white, black)

	if err := f.engine.LoadPlayers(context.Background(), Bot("alpha", "bin/alpha"), Bot("beta", "bin/beta")); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if white.terminateCount() != 1 || black.terminateCount() != 1 {
		t.Fatalf("previous channels not terminated: %d %d", white.terminateCount(), black.terminateCount())
	}
}
