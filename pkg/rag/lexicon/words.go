// Package lexicon holds the small amount of word-level text handling the
// pipeline needs to check model output against user input.
package lexicon

import (
	"strings"
	"unicode"
)

var foldAccents = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
	"à", "a", "è", "e", "ì", "i", "ò", "o", "ù", "u",
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		ante para pero porque como cuando donde esta este esto estos estas estoy estas estan
		tengo tiene tienen tambien solo sola muy mucho mucha algo nada todo toda todos todas
		hola hace hacer ser eres somos sido estar puedo puede pueden quiero quieres sobre entre
		desde hasta con sin que qué cual cuales quien quienes mismo misma otra otro otros otras
		ellos ellas nosotros vosotros usted ustedes dime decir digo dice dicen pues bueno vale
		this that with from have what when where there their they them about would could should
		your yours just like`) {
		stopwords[w] = struct{}{}
	}
}

// Fold lowercases and strips Spanish accents so "Pátio" and "patio" compare equal.
func Fold(s string) string {
	return foldAccents.Replace(strings.ToLower(s))
}

// Tokens splits folded text into letter/digit runs.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContentWords returns distinct tokens of at least four runes that are not stopwords, in order.
func ContentWords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokens(s) {
		if len([]rune(tok)) < 4 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// SharesContentWord reports whether a and b have a content word in common.
func SharesContentWord(a, b string) bool {
	words := make(map[string]struct{})
	for _, w := range ContentWords(a) {
		words[w] = struct{}{}
	}
	for _, w := range ContentWords(b) {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

// stemRunes is how many leading runes two words must share to count as the same word.
const stemRunes = 5

// Coverage returns the share of a's content words that also occur in b,
// matching words on their first runes so "pegarle" counts for "pegarme".
// It is 0 when a has no content words.
func Coverage(a, b string) float64 {
	words := ContentWords(a)
	if len(words) == 0 {
		return 0
	}
	stems := make(map[string]struct{})
	for _, w := range ContentWords(b) {
		stems[stem(w)] = struct{}{}
	}
	hits := 0
	for _, w := range words {
		if _, ok := stems[stem(w)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

func stem(w string) string {
	r := []rune(w)
	if len(r) > stemRunes {
		r = r[:stemRunes]
	}
	return string(r)
}

// HasLetters reports whether s contains at least one letter.
func HasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// ContainsAnyPhrase reports whether folded text contains any folded phrase as whole words.
func ContainsAnyPhrase(text string, phrases []string) (string, bool) {
	padded := " " + strings.Join(Tokens(text), " ") + " "
	for _, p := range phrases {
		needle := " " + strings.Join(Tokens(p), " ") + " "
		if strings.TrimSpace(needle) == "" {
			continue
		}
		if strings.Contains(padded, needle) {
			return p, true
		}
	}
	return "", false
}

// LongestSharedRun returns the length of the longest run of consecutive tokens
// that appears in both a and b.
func LongestSharedRun(a, b string) int {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	prev := make([]int, len(tb)+1)
	curr := make([]int, len(tb)+1)
	best := 0
	for i := 1; i <= len(ta); i++ {
		for j := 1; j <= len(tb); j++ {
			if ta[i-1] == tb[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}

// FirstSentence cuts s at the first sentence terminator and at maxRunes.
func FirstSentence(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?\n"); idx >= 0 {
		s = strings.TrimSpace(s[:idx+1])
	}
	runes := []rune(s)
	if maxRunes > 0 && len(runes) > maxRunes {
		s = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return s
}
