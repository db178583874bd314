package phonetic

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	katakanaSmallA          = 'ァ' // U+30A1
	katakanaSmallKe         = 'ヶ' // U+30F6
	katakanaIteration       = 'ヽ'
	katakanaVoicedIteration = 'ヾ'
	prolongedSoundMark      = 'ー'

	// Distance between a katakana letter and its hiragana counterpart
	kanaOffset = 0x60
)

// KatakanaToHiragana maps katakana letters and iteration marks to hiragana.
// The prolonged sound mark and every non-katakana rune pass through.
func KatakanaToHiragana() transform.Transformer {
	return runes.Map(func(r rune) rune {
		switch {
		case r >= katakanaSmallA && r <= katakanaSmallKe:
			return r - kanaOffset
		case r == katakanaIteration || r == katakanaVoicedIteration:
			return r - kanaOffset
		}
		return r
	})
}

// ToHiragana converts s with KatakanaToHiragana. It is idempotent.
func ToHiragana(s string) string {
	out, _, err := transform.String(KatakanaToHiragana(), s)
	if err != nil {
		return s
	}
	return out
}

// IsKana reports whether s is non-empty and made only of hiragana, katakana
// and kana marks
func IsKana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isKanaRune(r) {
			return false
		}
	}
	return true
}

func isKanaRune(r rune) bool {
	switch {
	case r >= 'ぁ' && r <= 'ゖ':
		return true
	case r == 'ゝ' || r == 'ゞ':
		return true
	case r >= katakanaSmallA && r <= 'ヺ':
		return true
	case r == prolongedSoundMark || r == katakanaIteration || r == katakanaVoicedIteration:
		return true
	}
	return false
}
