// Package langdetect guesses the language of a transcript when the speech
// provider did not report one.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	_ "github.com/pemistahl/lingua-go/language-models/ar"
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/hi"
	_ "github.com/pemistahl/lingua-go/language-models/it"
	_ "github.com/pemistahl/lingua-go/language-models/ja"
	_ "github.com/pemistahl/lingua-go/language-models/ko"
	_ "github.com/pemistahl/lingua-go/language-models/nl"
	_ "github.com/pemistahl/lingua-go/language-models/pl"
	_ "github.com/pemistahl/lingua-go/language-models/pt"
	_ "github.com/pemistahl/lingua-go/language-models/ru"
	_ "github.com/pemistahl/lingua-go/language-models/tr"
	_ "github.com/pemistahl/lingua-go/language-models/uk"
	_ "github.com/pemistahl/lingua-go/language-models/zh"
)

// Languages are the candidates considered by Default.
var Languages = []lingua.Language{
	lingua.English, lingua.Spanish, lingua.French, lingua.German,
	lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Polish,
	lingua.Russian, lingua.Ukrainian, lingua.Turkish, lingua.Arabic,
	lingua.Hindi, lingua.Chinese, lingua.Japanese, lingua.Korean,
}

// Detector wraps a lingua detector that is built on first use.
type Detector struct {
	langs    []lingua.Language
	once     sync.Once
	detector lingua.LanguageDetector
}

// New creates a detector over langs.
func New(langs ...lingua.Language) *Detector {
	return &Detector{langs: langs}
}

var defaultDetector = New(Languages...)

// Default returns the shared detector over Languages.
func Default() *Detector { return defaultDetector }

// Detect returns the lowercase ISO 639-1 code of text, or "" when the text
// is too short or ambiguous.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(d.langs...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
