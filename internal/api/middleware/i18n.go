// Package middleware enthält die Gin-Middleware der API
package middleware

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"claimsight/config"
)

const localizerKey = "localizer"

// I18n lädt die Sprachdateien und hängt an jede Anfrage einen Localizer.
// Die Sprache kommt aus dem Query-Parameter "lang" oder dem
// Accept-Language-Header; ohne beides gilt die konfigurierte
// Standardsprache.
func I18n(cfg config.I18nConfig) gin.HandlerFunc {
	defaultLang, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		log.Warnf("Invalid default language %q, falling back to English", cfg.DefaultLanguage)
		defaultLang = language.English
	}

	bundle := i18n.NewBundle(defaultLang)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := os.ReadDir(cfg.LocalesDir)
	if err != nil {
		log.Warnf("Could not read locales directory %s: %v", cfg.LocalesDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(cfg.LocalesDir, entry.Name())
		if _, err := bundle.LoadMessageFile(path); err != nil {
			log.Warnf("Could not load locale file %s: %v", path, err)
		} else {
			log.Debugf("Loaded locale file %s", path)
		}
	}

	return func(c *gin.Context) {
		langs := make([]string, 0, 3)
		if lang := c.Query("lang"); lang != "" {
			langs = append(langs, lang)
		}
		if accept := c.GetHeader("Accept-Language"); accept != "" {
			langs = append(langs, accept)
		}
		langs = append(langs, cfg.DefaultLanguage)

		c.Set(localizerKey, i18n.NewLocalizer(bundle, langs...))
		c.Next()
	}
}

// T übersetzt eine Message-ID im Kontext der aktuellen Anfrage. Fehlt die
// Übersetzung, wird die Message-ID selbst zurückgegeben.
func T(c *gin.Context, messageID string) string {
	if v, ok := c.Get(localizerKey); ok {
		if loc, ok := v.(*i18n.Localizer); ok {
			if msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: messageID}); err == nil {
				return msg
			}
		}
	}
	return messageID
}
