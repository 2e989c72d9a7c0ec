package phonemizer

import (
	"strings"

	"github.com/neurlang/goruut/lib"
	"github.com/neurlang/goruut/models/requests"
)

// Phonemizer converts normalized text into an IPA phoneme string with
// punctuation and stress markers preserved.
type Phonemizer struct {
	p *lib.Phonemizer
}

func NewPhonemizer() *Phonemizer {
	return &Phonemizer{
		p: lib.NewPhonemizer(nil),
	}
}

// Phonemize returns the phoneme string for the text, word-tokenized and
// rejoined with single spaces.
func (ph *Phonemizer) Phonemize(text string) string {
	resp := ph.p.Sentence(requests.PhonemizeSentence{
		Language: "English",
		Sentence: text,
	})

	words := make([]string, 0, len(resp.Words))
	for _, word := range resp.Words {
		if word.Phonetic == "" {
			continue
		}
		words = append(words, word.Phonetic)
	}

	return strings.Join(words, " ")
}

func (ph *Phonemizer) Close() error {
	return nil
}
