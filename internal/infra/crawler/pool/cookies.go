package pool

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/chrome"
)

type storageState struct {
	SavedAt time.Time       `json:"saved_at"`
	Cookies []chrome.Cookie `json:"cookies"`
}

// CookieStore keeps the browser cookie jar in a JSON file so a solved
// challenge survives restarts. An empty path disables persistence.
type CookieStore struct {
	path string
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

func (s *CookieStore) Path() string {
	return s.path
}

// Load returns the saved cookies. A missing file yields no cookies and no error.
func (s *CookieStore) Load() ([]chrome.Cookie, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pool: read cookie jar")
	}
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, eris.Wrap(err, "pool: decode cookie jar")
	}
	return state.Cookies, nil
}

// Save replaces the jar atomically. Concurrent savers race; the last rename wins.
func (s *CookieStore) Save(cookies []chrome.Cookie, now time.Time) error {
	if s == nil || s.path == "" {
		return nil
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "pool: create cookie jar dir")
	}
	data, err := json.MarshalIndent(storageState{SavedAt: now, Cookies: cookies}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pool: encode cookie jar")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "pool: create temp cookie jar")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "pool: write temp cookie jar")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "pool: close temp cookie jar")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "pool: replace cookie jar")
	}
	return nil
}

// Remove deletes the jar. Removing a missing jar is not an error.
func (s *CookieStore) Remove() error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrap(err, "pool: remove cookie jar")
	}
	return nil
}
