package flows

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// TranslatableText is message text which may be a single untranslated string
// or a map of language codes to translations, e.g. {"eng": "Hello", "fra":
// "Bonjour"}.
type TranslatableText struct {
	untranslated string
	hasText      bool
	translations map[string]string // nil when untranslated
}

// NewText creates untranslated text.
func NewText(text string) TranslatableText {
	return TranslatableText{untranslated: text, hasText: true}
}

// NewTranslations creates text with a translation per language.
func NewTranslations(translations map[string]string) TranslatableText {
	return TranslatableText{translations: translations}
}

func translatableFromJSON(elem gjson.Result) TranslatableText {
	if elem.IsObject() {
		translations := map[string]string{}
		elem.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Null {
				translations[key.String()] = value.String()
			}
			return true
		})
		return NewTranslations(translations)
	}
	if elem.Exists() && elem.Type != gjson.Null {
		return NewText(elem.String())
	}
	return TranslatableText{}
}

// Localized returns the best text for the given preferred languages, e.g.
// the contact language followed by the org primary language and the flow
// base language. Translation sets fall back to their "base" or "def" entries
// before the given default.
func (t TranslatableText) Localized(preferredLangs []string, defaultText string) string {
	if t.translations == nil {
		if !t.hasText {
			return defaultText
		}
		return t.untranslated
	}

	for _, lang := range preferredLangs {
		if text, exists := t.translations[lang]; exists {
			return text
		}
	}
	for _, lang := range []string{"base", "def"} {
		if text, exists := t.translations[lang]; exists {
			return text
		}
	}
	return defaultText
}

// Languages returns the languages this text is translated into.
func (t TranslatableText) Languages() []string {
	languages := make([]string, 0, len(t.translations))
	for lang := range t.translations {
		languages = append(languages, lang)
	}
	return languages
}

func (t TranslatableText) MarshalJSON() ([]byte, error) {
	if t.translations != nil {
		return json.Marshal(t.translations)
	}
	return json.Marshal(t.untranslated)
}

func (t *TranslatableText) UnmarshalJSON(data []byte) error {
	*t = translatableFromJSON(gjson.ParseBytes(data))
	return nil
}
