package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	_ "modernc.org/sqlite"
)

const (
	LanguageEnglish = "en"
	LanguageArabic  = "ar"

	ThemeDark  = "dark"
	ThemeLight = "light"
)

const (
	keyLanguage = "lang"
	keyTheme    = "theme"
	keyCurrency = "currency"
)

var supportedLanguages = []language.Tag{language.English, language.Arabic}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Preferences are the display settings that survive restarts.
type Preferences struct {
	Language string `json:"language"`
	Theme    string `json:"theme"`
	Currency string `json:"currency"`
}

func Defaults() Preferences {
	return Preferences{Language: LanguageEnglish, Theme: ThemeDark, Currency: "USD"}
}

// MatchLanguage maps a language tag or Accept-Language header to one of the
// supported languages, English when nothing matches.
func MatchLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LanguageEnglish
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return LanguageEnglish
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return LanguageEnglish
	}
	base, _ := supportedLanguages[idx].Base()
	return base.String()
}

// Direction is the text direction for a supported language.
func Direction(lang string) string {
	if lang == LanguageArabic {
		return "rtl"
	}
	return "ltr"
}

func normalizeTheme(theme string) string {
	if strings.ToLower(strings.TrimSpace(theme)) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Normalize coerces every field to a supported value. resolveCurrency maps
// the stored code to a known one and may be nil.
func (p Preferences) Normalize(resolveCurrency func(string) string) Preferences {
	out := Preferences{
		Language: MatchLanguage(p.Language),
		Theme:    normalizeTheme(p.Theme),
		Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
	if out.Currency == "" {
		out.Currency = Defaults().Currency
	}
	if resolveCurrency != nil {
		out.Currency = resolveCurrency(out.Currency)
	}
	return out
}

// Store keeps preferences in a sqlite key/value table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create preferences directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preferences db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate preferences db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS preferences (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored preferences, using defaults for missing keys.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	return s.LoadOver(ctx, Defaults())
}

// LoadOver returns base with every stored key applied on top. base is
// returned unchanged when nothing is stored or loading fails.
func (s *Store) LoadOver(ctx context.Context, base Preferences) (Preferences, error) {
	p := base
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return p, fmt.Errorf("load preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return base, fmt.Errorf("scan preference: %w", err)
		}
		switch key {
		case keyLanguage:
			p.Language = value
		case keyTheme:
			p.Theme = value
		case keyCurrency:
			p.Currency = value
		}
	}
	if err := rows.Err(); err != nil {
		return base, fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

// Save writes every field; the last write wins.
func (s *Store) Save(ctx context.Context, p Preferences) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	now := time.Now().UTC()
	for key, value := range map[string]string{
		keyLanguage: p.Language,
		keyTheme:    p.Theme,
		keyCurrency: p.Currency,
	} {
		if _, err := tx.ExecContext(ctx, `
        INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now); err != nil {
			return errors.Join(fmt.Errorf("save preference %s: %w", key, err), tx.Rollback())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
