package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Watchlist — список наблюдаемых символов в отдельном yaml, правится
// на лету через /watch и переживает рестарт.
type Watchlist struct {
	mu   sync.RWMutex
	path string
	syms []string
}

type watchlistFile struct {
	Symbols   []string `yaml:"symbols"`
	UpdatedAt string   `yaml:"updated_at,omitempty"`
}

func NewWatchlist(cfg *Config) (*Watchlist, error) {
	w := &Watchlist{path: cfg.WatchlistFile}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watchlist) load() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			w.syms = nil
			return nil
		}
		return fmt.Errorf("read watchlist %s: %w", w.path, err)
	}
	var f watchlistFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("decode watchlist %s: %w", w.path, err)
	}
	w.syms = normalize(f.Symbols)
	return nil
}

func (w *Watchlist) save() error {
	f := watchlistFile{
		Symbols:   w.syms,
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
	raw, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(w.path, raw, 0o644)
}

func (w *Watchlist) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.syms))
	copy(out, w.syms)
	return out
}

func (w *Watchlist) Contains(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.syms {
		if s == symbol {
			return true
		}
	}
	return false
}

func (w *Watchlist) Add(symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.syms {
		if s == symbol {
			return false, nil
		}
	}
	w.syms = append(w.syms, symbol)
	return true, w.save()
}

func (w *Watchlist) Remove(symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, s := range w.syms {
		if s == symbol {
			w.syms = append(w.syms[:i], w.syms[i+1:]...)
			return true, w.save()
		}
	}
	return false, nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
