package intelligence

import (
	"errors"
	"fmt"
	"strings"

	"cheatwatch/internal/core"
)

// ErrInvalidHash is returned for hash entries that are not SHA-256 hex digests.
var ErrInvalidHash = errors.New("invalid sha256 hex digest")

// HashEntry is one known-bad file digest.
type HashEntry struct {
	Hash        string `json:"hash"` // lowercase hex
	Category    string `json:"category"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// Indicator is a text indicator with the weight its matches carry.
type Indicator struct {
	Value  string // lowercase
	Weight int
	Label  string // e.g. "site", "server", "channel"
}

// Weights are the per-indicator-class event weights.
type Weights struct {
	HashMatch     int `yaml:"hash_match" validate:"min=0,max=100"`
	Keyword       int `yaml:"keyword_found" validate:"min=0,max=100"`
	BlacklistSite int `yaml:"suspicious_url" validate:"min=0,max=100"`
	AuthBonus     int `yaml:"auth_bonus" validate:"min=0,max=100"`
	ChatServer    int `yaml:"discord_server" validate:"min=0,max=100"`
	ChatChannel   int `yaml:"discord_channel" validate:"min=0,max=100"`
	ChatKeyword   int `yaml:"discord_keyword" validate:"min=0,max=100"`
}

// DefaultWeights mirrors the built-in weights shipped with the hash database.
func DefaultWeights() Weights {
	return Weights{
		HashMatch:     40,
		Keyword:       15,
		BlacklistSite: 20,
		AuthBonus:     5,
		ChatServer:    30,
		ChatChannel:   20,
		ChatKeyword:   15,
	}
}

// Ceilings cap how much each category may contribute to the total score.
type Ceilings struct {
	Hash    int `yaml:"hash" validate:"min=0,max=100"`
	Browser int `yaml:"browser" validate:"min=0,max=100"`
	Chat    int `yaml:"chat" validate:"min=0,max=100"`
}

func DefaultCeilings() Ceilings {
	return Ceilings{Hash: 50, Browser: 30, Chat: 30}
}

// For returns the ceiling of a category. Unknown categories are uncapped.
func (c Ceilings) For(cat core.Category) int {
	switch cat {
	case core.CategoryHash:
		return c.Hash
	case core.CategoryBrowser:
		return c.Browser
	case core.CategoryChat:
		return c.Chat
	default:
		return 100
	}
}

// Sources is the raw material an IndicatorSet is built from.
type Sources struct {
	Hashes       []HashEntry
	Keywords     []string
	Sites        []string
	ChatServers  []string
	ChatChannels []string
}

// IndicatorSet is built once per scan and is read-only afterwards.
type IndicatorSet struct {
	hashes   map[string]HashEntry
	keywords []string
	sites    []string
	servers  []string
	channels []string
	weights  Weights
	ceilings Ceilings
}

// NewIndicatorSet normalizes and validates the sources.
func NewIndicatorSet(src Sources, w Weights, c Ceilings) (*IndicatorSet, error) {
	if err := checkRange(w, c); err != nil {
		return nil, err
	}

	set := &IndicatorSet{
		hashes:   make(map[string]HashEntry, len(src.Hashes)),
		keywords: normalizeList(src.Keywords),
		sites:    normalizeList(src.Sites),
		servers:  normalizeList(src.ChatServers),
		channels: normalizeList(src.ChatChannels),
		weights:  w,
		ceilings: c,
	}

	for _, e := range src.Hashes {
		h, ok := NormalizeHash(e.Hash)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHash, e.Hash)
		}
		e.Hash = h
		e.Weight = core.ClampWeight(e.Weight)
		if e.Category == "" {
			e.Category = "unknown"
		}
		set.hashes[h] = e
	}
	return set, nil
}

func checkRange(w Weights, c Ceilings) error {
	values := map[string]int{
		"hash_match": w.HashMatch, "keyword_found": w.Keyword, "suspicious_url": w.BlacklistSite,
		"auth_bonus": w.AuthBonus, "discord_server": w.ChatServer, "discord_channel": w.ChatChannel,
		"discord_keyword": w.ChatKeyword, "ceiling.hash": c.Hash, "ceiling.browser": c.Browser,
		"ceiling.chat": c.Chat,
	}
	for name, v := range values {
		if v < 0 || v > 100 {
			return fmt.Errorf("weight %s out of range: %d", name, v)
		}
	}
	return nil
}

// NormalizeHash lowercases a hex digest and checks it is 64 hex characters.
func NormalizeHash(h string) (string, bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	if len(h) != 64 {
		return "", false
	}
	for i := 0; i < len(h); i++ {
		ch := h[i]
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return "", false
		}
	}
	return h, true
}

func normalizeList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// LookupHash finds a digest regardless of its letter case.
func (s *IndicatorSet) LookupHash(digest string) (HashEntry, bool) {
	e, ok := s.hashes[strings.ToLower(strings.TrimSpace(digest))]
	return e, ok
}

// MatchKeyword returns the first keyword contained in text.
func (s *IndicatorSet) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// BrowserIndicators returns the keyword and blacklist lists for browser artifacts.
func (s *IndicatorSet) BrowserIndicators() (keywords, blacklist []Indicator) {
	return toIndicators(s.keywords, s.weights.Keyword, "keyword"),
		toIndicators(s.sites, s.weights.BlacklistSite, "site")
}

// ChatIndicators returns the keyword and blacklist lists for chat artifacts.
// Server names and channel names share the blacklist with their own weights.
func (s *IndicatorSet) ChatIndicators() (keywords, blacklist []Indicator) {
	blacklist = toIndicators(s.servers, s.weights.ChatServer, "server")
	seen := make(map[string]bool, len(s.servers))
	for _, v := range s.servers {
		seen[v] = true
	}
	for _, ch := range toIndicators(s.channels, s.weights.ChatChannel, "channel") {
		if !seen[ch.Value] {
			blacklist = append(blacklist, ch)
		}
	}
	return toIndicators(s.keywords, s.weights.ChatKeyword, "keyword"), blacklist
}

func toIndicators(values []string, weight int, label string) []Indicator {
	out := make([]Indicator, len(values))
	for i, v := range values {
		out[i] = Indicator{Value: v, Weight: weight, Label: label}
	}
	return out
}

func (s *IndicatorSet) Weights() Weights   { return s.weights }
func (s *IndicatorSet) Ceilings() Ceilings { return s.ceilings }
func (s *IndicatorSet) HashCount() int     { return len(s.hashes) }
func (s *IndicatorSet) Keywords() []string { return append([]string(nil), s.keywords...) }

// Stats returns indicator counts for display.
func (s *IndicatorSet) Stats() string {
	return fmt.Sprintf("Hashes: %d, Keywords: %d, Sites: %d, Chat servers: %d, Chat channels: %d",
		len(s.hashes), len(s.keywords), len(s.sites), len(s.servers), len(s.channels))
}
