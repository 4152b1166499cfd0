// Package bracket implements a double-elimination bracket as an explicit
// state machine. A competitor is eliminated only after two losses: the first
// drops them from the winners bracket into the losers bracket, the second is
// final. The field is padded to a power of two with byes, which cascade
// automatically and never appear in a ready match.
package bracket

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownMatch  = errors.New("unknown bracket match")
	ErrMatchNotReady = errors.New("bracket match is not ready")
	ErrMatchFinished = errors.New("bracket match already finished")
	ErrTiedScore     = errors.New("bracket match cannot end tied")
)

// Bracket labels on Pairing.
const (
	BracketWinners    = "winners"
	BracketLosers     = "losers"
	BracketGrandFinal = "grand_final"
	BracketReset      = "grand_final_reset"
)

// Pairing is one playable match: both seats hold real competitors.
type Pairing struct {
	ID      string `json:"id"`
	Bracket string `json:"bracket"`
	Round   int    `json:"round"`
	Index   int    `json:"index"`
	Home    string `json:"home"`
	Away    string `json:"away"`
}

// MatchView is a Pairing plus its outcome, for observers. Home and Away are
// empty while a seat waits to be fed by an earlier match.
type MatchView struct {
	Pairing
	Done      bool   `json:"done"`
	ScoreHome int    `json:"score_home"`
	ScoreAway int    `json:"score_away"`
	Winner    string `json:"winner,omitempty"`
}

// Placement is the final standings. Third and Fourth stay empty when the
// field is too small to fill them.
type Placement struct {
	Champion string `json:"champion"`
	RunnerUp string `json:"runner_up"`
	Third    string `json:"third,omitempty"`
	Fourth   string `json:"fourth,omitempty"`
}

type kind int

const (
	kindWinners kind = iota
	kindLosers
	kindGrandFinal
	kindReset
)

// seat holds one side of a match. An empty name with taken=true is a bye.
type seat struct {
	name  string
	taken bool
}

type slotRef struct {
	match int
	seat  int
}

type node struct {
	id     string
	kind   kind
	round  int
	index  int
	seats  [2]seat
	winTo  *slotRef
	loseTo *slotRef

	done      bool
	void      bool // reset final that never runs
	winner    string
	loser     string
	scoreHome int
	scoreAway int
}

func (n *node) ready() bool {
	return !n.done && !n.void &&
		n.seats[0].taken && n.seats[1].taken &&
		n.seats[0].name != "" && n.seats[1].name != ""
}

func (n *node) bracketLabel() string {
	switch n.kind {
	case kindWinners:
		return BracketWinners
	case kindLosers:
		return BracketLosers
	case kindGrandFinal:
		return BracketGrandFinal
	}
	return BracketReset
}

func (n *node) pairing() Pairing {
	return Pairing{
		ID:      n.id,
		Bracket: n.bracketLabel(),
		Round:   n.round,
		Index:   n.index,
		Home:    n.seats[0].name,
		Away:    n.seats[1].name,
	}
}

// Stage is one double-elimination run. It is not safe for concurrent use;
// the tournament layer serializes access.
type Stage struct {
	nodes []*node
	byID  map[string]int
	k     int

	finished bool
	champion string
	runnerUp string
}

// New seeds a stage with the participants in the given order. Shuffling is
// the caller's concern.
func New(participants []string) (*Stage, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("at least 2 participants are required, got %d", len(participants))
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return nil, fmt.Errorf("participant name is required")
		}
		if seen[p] {
			return nil, fmt.Errorf("duplicate participant %q", p)
		}
		seen[p] = true
	}

	size := 1
	for size < len(participants) {
		size <<= 1
	}
	k := 0
	for 1<<k < size {
		k++
	}

	s := &Stage{byID: make(map[string]int), k: k}

	add := func(kd kind, round, index int) int {
		n := &node{id: uuid.NewString(), kind: kd, round: round, index: index}
		s.nodes = append(s.nodes, n)
		s.byID[n.id] = len(s.nodes) - 1
		return len(s.nodes) - 1
	}

	wb := make([][]int, k)
	for r := 1; r <= k; r++ {
		count := size >> r
		wb[r-1] = make([]int, count)
		for i := 0; i < count; i++ {
			wb[r-1][i] = add(kindWinners, r, i)
		}
	}

	var lb [][]int
	if k >= 2 {
		lb = make([][]int, 2*k-2)
		for round := 1; round <= 2*k-2; round++ {
			j := (round + 1) / 2
			count := 1 << (k - 1 - j)
			lb[round-1] = make([]int, count)
			for i := 0; i < count; i++ {
				lb[round-1][i] = add(kindLosers, round, i)
			}
		}
	}

	gf := add(kindGrandFinal, 1, 0)
	add(kindReset, 1, 0)

	// Winners bracket routing. Losers drop into the losers bracket; the
	// drop-in order reverses on alternating rounds to delay rematches.
	for r := 1; r <= k; r++ {
		for i, idx := range wb[r-1] {
			n := s.nodes[idx]
			if r < k {
				n.winTo = &slotRef{wb[r][i/2], i % 2}
			} else {
				n.winTo = &slotRef{gf, 0}
			}
			switch {
			case k == 1:
				n.loseTo = &slotRef{gf, 1}
			case r == 1:
				n.loseTo = &slotRef{lb[0][i/2], i % 2}
			default:
				j := r - 1
				dest := lb[2*j-1]
				di := i
				if j%2 == 1 {
					di = len(dest) - 1 - i
				}
				n.loseTo = &slotRef{dest[di], 0}
			}
		}
	}

	// Losers bracket routing: minor rounds feed the adjacent major round's
	// away seat, major rounds pair their winners for the next minor round.
	for round := 1; round <= 2*k-2; round++ {
		for i, idx := range lb[round-1] {
			n := s.nodes[idx]
			switch {
			case round == 2*k-2:
				n.winTo = &slotRef{gf, 1}
			case round%2 == 1:
				n.winTo = &slotRef{lb[round][i], 1}
			default:
				n.winTo = &slotRef{lb[round][i/2], i % 2}
			}
		}
	}

	seeds := make([]string, size)
	copy(seeds, participants)
	for i, idx := range wb[0] {
		s.feedSeat(&slotRef{idx, 0}, seeds[2*i])
		s.feedSeat(&slotRef{idx, 1}, seeds[2*i+1])
	}
	return s, nil
}

// NextReady returns the earliest playable match in schedule order.
func (s *Stage) NextReady() (*Pairing, bool) {
	for _, n := range s.nodes {
		if n.ready() {
			p := n.pairing()
			return &p, true
		}
	}
	return nil, false
}

// Report records a decisive scoreline for a ready match and advances both
// sides.
func (s *Stage) Report(matchID string, scoreHome, scoreAway int) error {
	idx, ok := s.byID[matchID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	n := s.nodes[idx]
	if n.done || n.void {
		return fmt.Errorf("%w: %s", ErrMatchFinished, matchID)
	}
	if !n.ready() {
		return fmt.Errorf("%w: %s", ErrMatchNotReady, matchID)
	}
	if scoreHome == scoreAway {
		return fmt.Errorf("%w: %d-%d", ErrTiedScore, scoreHome, scoreAway)
	}

	winner, loser := n.seats[0].name, n.seats[1].name
	if scoreAway > scoreHome {
		winner, loser = loser, winner
	}
	n.done = true
	n.winner, n.loser = winner, loser
	n.scoreHome, n.scoreAway = scoreHome, scoreAway

	switch n.kind {
	case kindGrandFinal:
		if winner == n.seats[0].name {
			// The winners-bracket champion stays unbeaten, no reset.
			s.voidReset()
			s.finish(winner, loser)
			return nil
		}
		// Both sides now stand at one loss; a reset final decides.
		reset := s.resetNode()
		s.feedSeat(&slotRef{s.byID[reset.id], 0}, n.seats[0].name)
		s.feedSeat(&slotRef{s.byID[reset.id], 1}, n.seats[1].name)
	case kindReset:
		s.finish(winner, loser)
	default:
		s.feedSeat(n.winTo, winner)
		s.feedSeat(n.loseTo, loser)
	}
	return nil
}

// Standings reports the final placements once the stage is decided.
func (s *Stage) Standings() (Placement, bool) {
	if !s.finished {
		return Placement{}, false
	}
	p := Placement{Champion: s.champion, RunnerUp: s.runnerUp}
	if s.k >= 2 {
		if final := s.losersNode(2*s.k-2, 0); final != nil {
			p.Third = final.loser
		}
		if semi := s.losersNode(2*s.k-3, 0); semi != nil {
			p.Fourth = semi.loser
		}
	}
	return p, true
}

// Matches lists every match that is or will be playable, plus finished ones.
// Bye walkovers and a voided reset final are omitted.
func (s *Stage) Matches() []MatchView {
	views := make([]MatchView, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.void {
			continue
		}
		if n.done && (n.seats[0].name == "" || n.seats[1].name == "") {
			continue // bye walkover
		}
		views = append(views, MatchView{
			Pairing:   n.pairing(),
			Done:      n.done,
			ScoreHome: n.scoreHome,
			ScoreAway: n.scoreAway,
			Winner:    n.winner,
		})
	}
	return views
}

// Finished reports whether a champion has been decided.
func (s *Stage) Finished() bool { return s.finished }

func (s *Stage) feedSeat(ref *slotRef, name string) {
	if ref == nil {
		return
	}
	n := s.nodes[ref.match]
	n.seats[ref.seat] = seat{name: name, taken: true}
	s.resolveBye(n)
}

// resolveBye advances a filled match containing a bye without play. A
// double bye advances a bye so later seats still get fed.
func (s *Stage) resolveBye(n *node) {
	if n.done || !n.seats[0].taken || !n.seats[1].taken {
		return
	}
	home, away := n.seats[0].name, n.seats[1].name
	if home != "" && away != "" {
		return
	}
	winner, loser := home, away
	if home == "" {
		winner, loser = away, home
	}
	n.done = true
	n.winner, n.loser = winner, loser
	s.feedSeat(n.winTo, winner)
	s.feedSeat(n.loseTo, loser)
}

func (s *Stage) finish(champion, runnerUp string) {
	s.finished = true
	s.champion = champion
	s.runnerUp = runnerUp
}

func (s *Stage) voidReset() {
	if n := s.resetNode(); n != nil {
		n.void = true
	}
}

func (s *Stage) resetNode() *node {
	for _, n := range s.nodes {
		if n.kind == kindReset {
			return n
		}
	}
	return nil
}

func (s *Stage) losersNode(round, index int) *node {
	for _, n := range s.nodes {
		if n.kind == kindLosers && n.round == round && n.index == index {
			return n
		}
	}
	return nil
}
