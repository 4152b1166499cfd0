// Package livestate publishes arena snapshots to Redis for renderers. Each
// snapshot overwrites the previous one under a fixed key with a TTL, so a
// stalled arena disappears instead of going stale.
package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chess-arena/internal/engine"
	"chess-arena/internal/tournament"
	"chess-arena/pkg/arenadto"
)

const (
	keyGame       = "arena:live:game"
	keyTournament = "arena:live:tournament"

	// DefaultTTL keeps a snapshot alive long enough for a renderer poll
	// cycle but not much longer.
	DefaultTTL = 5 * time.Minute
)

// Publisher writes snapshots to a single Redis instance.
type Publisher struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPublisher(redisURL string, ttl time.Duration, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// PublishGame overwrites the live game snapshot.
func (p *Publisher) PublishGame(ctx context.Context, state engine.GameState) error {
	raw, err := json.Marshal(GameSnapshot(state))
	if err != nil {
		return err
	}
	if err := p.rdb.Set(ctx, keyGame, raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("publish game: %w", err)
	}
	p.logger.Debug("live_game_published",
		zap.String("game_id", state.ID),
		zap.Int("moves", len(state.History)),
	)
	return nil
}

// PublishTournament overwrites the live tournament snapshot.
func (p *Publisher) PublishTournament(ctx context.Context, state tournament.State) error {
	raw, err := json.Marshal(TournamentSnapshot(state))
	if err != nil {
		return err
	}
	if err := p.rdb.Set(ctx, keyTournament, raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("publish tournament: %w", err)
	}
	p.logger.Debug("live_tournament_published", zap.String("status", string(state.Status)))
	return nil
}

// GameSnapshot converts an engine snapshot into its published form. Result
// sides carry player names, not colors.
func GameSnapshot(state engine.GameState) arenadto.GameSnapshot {
	snap := arenadto.GameSnapshot{
		ID:          state.ID,
		Status:      string(state.Status),
		Position:    state.Position,
		Turn:        string(state.Turn),
		White:       arenadto.PlayerInfo{Kind: string(state.White.Kind), Name: state.White.Name},
		Black:       arenadto.PlayerInfo{Kind: string(state.Black.Kind), Name: state.Black.Name},
		TimeLimitMs: state.TimeLimitMs,
		LastMoveAt:  state.LastMoveAt,
	}
	for _, m := range state.History {
		snap.Moves = append(snap.Moves, arenadto.MoveInfo{
			Number:    m.Number,
			Color:     string(m.Color),
			SAN:       m.SAN,
			UCI:       m.UCI,
			Position:  m.Position,
			ElapsedMs: m.ElapsedMs,
		})
	}
	if state.Result.Decided() {
		info := &arenadto.ResultInfo{
			Kind:          string(state.Result.Kind),
			ForfeitReason: string(state.Result.Forfeit),
		}
		if state.Result.Winner != "" {
			info.Winner = state.Player(state.Result.Winner).Name
		}
		if state.Result.Loser != "" {
			info.Loser = state.Player(state.Result.Loser).Name
		}
		snap.Result = info
	}
	return snap
}

// TournamentSnapshot converts a tournament snapshot into its published form.
func TournamentSnapshot(state tournament.State) arenadto.TournamentSnapshot {
	snap := arenadto.TournamentSnapshot{
		Status:      string(state.Status),
		Discipline:  string(state.Discipline),
		TimeLimitMs: state.TimeLimitMs,
		ThirdPlace:  matchInfoPtr(state.ThirdPlace),
		Current:     matchInfoPtr(state.Current),
		Champion:    state.Champion,
		RunnerUp:    state.RunnerUp,
		Third:       state.Third,
		Fourth:      state.Fourth,
	}
	for _, round := range state.Rounds {
		infos := make([]arenadto.MatchInfo, 0, len(round))
		for _, m := range round {
			infos = append(infos, matchInfo(m))
		}
		snap.Rounds = append(snap.Rounds, infos)
	}
	for _, v := range state.Bracket {
		snap.Bracket = append(snap.Bracket, arenadto.BracketMatchInfo{
			ID:        v.ID,
			Bracket:   v.Bracket,
			Round:     v.Round,
			Index:     v.Index,
			Home:      v.Home,
			Away:      v.Away,
			Done:      v.Done,
			ScoreHome: v.ScoreHome,
			ScoreAway: v.ScoreAway,
			Winner:    v.Winner,
		})
	}
	for _, e := range state.Log {
		snap.Log = append(snap.Log, arenadto.GameLogInfo{
			MatchID: e.MatchID,
			Game:    e.Game,
			Winner:  e.Result.Winner,
			Loser:   e.Result.Loser,
			Reason:  e.Result.Reason,
		})
	}
	for _, rec := range state.HeadToHead {
		snap.HeadToHead = append(snap.HeadToHead, arenadto.PairInfo{
			A:     rec.A,
			B:     rec.B,
			WinsA: rec.WinsA,
			WinsB: rec.WinsB,
			Draws: rec.Draws,
		})
	}
	sort.Slice(snap.HeadToHead, func(i, j int) bool {
		if snap.HeadToHead[i].A != snap.HeadToHead[j].A {
			return snap.HeadToHead[i].A < snap.HeadToHead[j].A
		}
		return snap.HeadToHead[i].B < snap.HeadToHead[j].B
	})
	return snap
}

func matchInfo(m *tournament.Match) arenadto.MatchInfo {
	info := arenadto.MatchInfo{
		ID:      m.ID,
		Bracket: m.Bracket,
		Round:   m.Round,
		Slot:    m.Slot,
		Winner:  m.Winner,
		Loser:   m.Loser,
		Status:  string(m.Status),
	}
	if m.White != nil {
		info.White = m.White.Name
	}
	if m.Black != nil {
		info.Black = m.Black.Name
	}
	for _, g := range m.Games {
		info.Games = append(info.Games, arenadto.GameResultInfo{
			Winner: g.Winner,
			Loser:  g.Loser,
			Reason: g.Reason,
		})
	}
	return info
}

func matchInfoPtr(m *tournament.Match) *arenadto.MatchInfo {
	if m == nil {
		return nil
	}
	info := matchInfo(m)
	return &info
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
