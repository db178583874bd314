// Package phonetic renders Japanese text as its hiragana reading.
package phonetic

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/lexiqai/voice-reader/internal/voice"
)

// posSymbol is the IPA part of speech for punctuation and other symbols
const posSymbol = "記号"

// Converter produces readings with the kagome IPA tokenizer
type Converter struct {
	tok *tokenizer.Tokenizer
}

// NewConverter loads the IPA dictionary
func NewConverter() (*Converter, error) {
	tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}
	return &Converter{tok: tok}, nil
}

// Convert returns the hiragana reading of text. Symbols are dropped and
// tokens missing from the dictionary are kept only when already kana.
func (c *Converter) Convert(text string) (voice.PhoneticReading, error) {
	const op = "phonetic.convert"

	text = strings.TrimSpace(text)
	if text == "" {
		return voice.PhoneticReading{}, voice.E(voice.KindPhoneticConversion, op, fmt.Errorf("empty text"))
	}

	var sb strings.Builder
	for _, token := range c.tok.Tokenize(text) {
		if pos := token.POS(); len(pos) > 0 && pos[0] == posSymbol {
			continue
		}
		if reading, ok := token.Reading(); ok && reading != "*" && reading != "" {
			sb.WriteString(reading)
			continue
		}
		if IsKana(token.Surface) {
			sb.WriteString(token.Surface)
		}
	}

	if sb.Len() == 0 {
		return voice.PhoneticReading{}, voice.E(voice.KindPhoneticConversion, op, fmt.Errorf("no reading for %q", text))
	}

	return voice.PhoneticReading{
		Script: voice.ScriptHiragana,
		Text:   ToHiragana(sb.String()),
	}, nil
}
