// Package roster loads the competitor manifest: a JSON array describing the
// forks entered into the arena. The manifest is read once before a
// tournament; fetching and refreshing it is someone else's job.
package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chess-arena/internal/match"
)

// Entry is one manifest row.
type Entry struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	ForkURL  string `json:"forkUrl"`
}

// Load reads and validates the manifest at path. Entries with a duplicate
// username keep their first occurrence.
func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Username)
		if name == "" {
			return nil, fmt.Errorf("manifest entry %d: username is required", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		e.Username = name
		out = append(out, e)
	}
	return out, nil
}

// Competitors maps manifest entries onto tournament competitors. Each
// entry's agent executable is expected at agentsDir/<username>.
func Competitors(entries []Entry, agentsDir string) []match.Competitor {
	out := make([]match.Competitor, len(entries))
	for i, e := range entries {
		out[i] = match.Competitor{
			Name:     e.Username,
			Resource: filepath.Join(agentsDir, e.Username),
		}
	}
	return out
}
