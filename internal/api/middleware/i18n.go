package middleware

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Context keys set by the I18n middleware.
const (
	LanguageKey   = "language"
	TranslatorKey = "translator"
	TranslateKey  = "t"
)

// I18nConfig configures the i18n middleware.
type I18nConfig struct {
	DefaultLanguage string
	// Locales holds one <lang>.json message file per language at its root.
	Locales fs.FS
}

// TranslateFunc looks up a message id, optionally with template data.
type TranslateFunc func(key string, data ...map[string]interface{}) string

// Translator holds one localizer per loaded language.
type Translator struct {
	defaultLanguage string
	localizer       map[string]*i18n.Localizer
}

// NewTranslator loads every *.json file of config.Locales into one bundle.
func NewTranslator(config I18nConfig) (*Translator, error) {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	tag, err := language.Parse(config.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", config.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(config.Locales, "*.json")
	if err != nil {
		return nil, err
	}

	t := &Translator{
		defaultLanguage: config.DefaultLanguage,
		localizer:       make(map[string]*i18n.Localizer),
	}
	for _, file := range files {
		langCode := strings.TrimSuffix(file, path.Ext(file))
		if _, err := bundle.LoadMessageFileFS(config.Locales, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		// fallback chain: requested language, then the default
		t.localizer[langCode] = i18n.NewLocalizer(bundle, langCode, config.DefaultLanguage)
	}
	if _, ok := t.localizer[config.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("no message file for default language %q", config.DefaultLanguage)
	}
	return t, nil
}

// Supports reports whether a message file was loaded for lang.
func (t *Translator) Supports(lang string) bool {
	_, ok := t.localizer[lang]
	return ok
}

// Translate returns the message for key in lang. Unknown keys come back unchanged.
func (t *Translator) Translate(lang, key string, data map[string]interface{}) string {
	loc, ok := t.localizer[lang]
	if !ok {
		loc = t.localizer[t.defaultLanguage]
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil || msg == "" {
		return key
	}
	return msg
}

// Func binds Translate to one language.
func (t *Translator) Func(lang string) TranslateFunc {
	return func(key string, data ...map[string]interface{}) string {
		var td map[string]interface{}
		if len(data) > 0 {
			td = data[0]
		}
		return t.Translate(lang, key, td)
	}
}

// I18n picks the request language from ?lang=, then the session, then the default, and
// remembers an explicit choice in the session.
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supports(lang) {
			session.Set(LanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Warnf("Failed to save language in session: %v", err)
			}
		} else if stored, ok := session.Get(LanguageKey).(string); ok {
			lang = stored
		}

		if !translator.Supports(lang) {
			lang = translator.defaultLanguage
		}

		c.Set(LanguageKey, lang)
		c.Set(TranslatorKey, translator)
		c.Set(TranslateKey, translator.Func(lang))
		c.Next()
	}
}

// T translates key for the current request. Without the middleware the key is returned.
func T(c *gin.Context, key string) string {
	if fn, ok := c.Get(TranslateKey); ok {
		if t, ok := fn.(TranslateFunc); ok {
			return t(key)
		}
	}
	return key
}
