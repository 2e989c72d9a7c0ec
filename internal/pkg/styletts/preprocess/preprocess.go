package preprocess

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	emailRe      = regexp.MustCompile(`\S+@\S+\.\S+`)
)

type Preprocessor struct{}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Process normalizes raw input text before phonemization. Punctuation is
// kept; the phonemizer relies on it for phrasing.
func (p *Preprocessor) Process(text string) string {
	text = norm.NFC.String(text)
	text = urlRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = normalizeQuotes(text)
	text = normalizePunctuation(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"«", `"`,
	"»", `"`,
	"„", `"`,
	"‚", "'",
)

func normalizeQuotes(text string) string {
	return quoteReplacer.Replace(text)
}

var punctReplacer = strings.NewReplacer(
	"…", "...",
	"–", "-",
	"—", " - ",
	" ", " ",
)

func normalizePunctuation(text string) string {
	return punctReplacer.Replace(text)
}
