// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and turns failed actions into
// localized notices.
package localization

import (
	"blindchat/backend/internal/models"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
)

//go:embed locales/*.json
var embedded embed.FS

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every "<lang>.json" file found at the root of fsys.
func NewLocalizer(fsys fs.FS) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// Default returns a Localizer over the translations built into the binary.
func Default() (*Localizer, error) {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	return NewLocalizer(sub)
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Fallback to a default language if the key is not found in the specified language
	if lang != "en" {
		if enTranslations, ok := l.translations["en"]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	return langs
}

// ErrorCode names the class of err for clients that switch on it.
func ErrorCode(err error) string {
	var partial *models.PartialWriteError
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, models.ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, models.ErrAlreadyPartners):
		return "already_partners"
	case errors.Is(err, models.ErrSelfRequest):
		return "self_request"
	case errors.Is(err, models.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.As(err, &partial):
		return "partial_write"
	case models.IsTransient(err):
		return "transient"
	}
	return "generic"
}

// Notice turns err into the notice shown to a user speaking lang.
func (l *Localizer) Notice(lang string, err error) models.Notice {
	code := ErrorCode(err)
	return models.Notice{Code: code, Message: l.GetString(lang, "error."+code)}
}

// Notices binds Notice to one language.
func (l *Localizer) Notices(lang string) func(error) models.Notice {
	return func(err error) models.Notice { return l.Notice(lang, err) }
}

// Language picks the best loaded language from an Accept-Language header.
func (l *Localizer) Language(acceptLanguage, fallback string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		base, _, _ := strings.Cut(tag, "-")
		base = strings.ToLower(base)
		if _, ok := l.translations[base]; ok {
			return base
		}
	}
	return fallback
}
