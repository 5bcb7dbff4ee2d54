// Package extract turns raw caller transcripts into structured signals:
// yes/no answers, refusals, names and phone numbers (including spoken digit
// words). All functions are pure; locale data lives in a Lexicon.
package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Answer is the outcome of yes/no detection.
type Answer int

const (
	Unknown Answer = iota
	Yes
	No
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Name is a parsed (not yet confirmed) caller name.
type Name struct {
	First string
	Last  string
}

// Full returns "First Last" without trailing space for single-token names.
func (n Name) Full() string {
	return strings.TrimSpace(n.First + " " + n.Last)
}

// Extractor is the strategy the dialogue uses to read transcripts. Swapping
// the implementation changes locale without touching the state machine.
type Extractor interface {
	DetectYesNo(text string) Answer
	DetectRefusal(text string) bool
	ParseName(text string) (Name, bool)
	ExtractPhone(text string) string
}

// minNameLetters rejects fragments like a single stray letter.
const minNameLetters = 2

// Heuristics implements Extractor with keyword lists.
type Heuristics struct {
	lex         Lexicon
	stop        map[string]struct{}
	negators    map[string]struct{}
	countryCode string
}

// New builds a keyword extractor. countryCode is the international prefix
// without "+" ("972") used to fold spoken international numbers to local form.
func New(lex Lexicon, countryCode string) *Heuristics {
	stop := make(map[string]struct{}, len(lex.StopWords))
	for _, w := range lex.StopWords {
		stop[Normalize(w)] = struct{}{}
	}
	negators := make(map[string]struct{}, len(lex.Negators))
	for _, w := range lex.Negators {
		negators[Normalize(w)] = struct{}{}
	}
	return &Heuristics{lex: lex, stop: stop, negators: negators, countryCode: countryCode}
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func removeMarks(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases, removes diacritics and punctuation, and folds runs
// of whitespace into single spaces.
func Normalize(text string) string {
	return normalize(text, true)
}

func normalize(text string, lower bool) string {
	s := removeMarks(text)
	if lower {
		s = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case isApostrophe(r):
			// glued: "it's" -> "its", "ג'ון" -> "גון"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', '׳', '״', '`':
		return true
	}
	return false
}

func containsPhrase(normalized, phrase string) bool {
	p := Normalize(phrase)
	if p == "" || normalized == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+p+" ")
}

func containsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(normalized, p) {
			return true
		}
	}
	return false
}

// containsAffirmation matches affirmative phrases on word boundaries,
// skipping occurrences directly preceded by a negator ("לא נכון").
func (h *Heuristics) containsAffirmation(normalized string) bool {
	words := strings.Fields(normalized)
	for _, p := range h.lex.Yes {
		pw := strings.Fields(Normalize(p))
		if len(pw) == 0 {
			continue
		}
		for i := 0; i+len(pw) <= len(words); i++ {
			if !sameWords(words[i:i+len(pw)], pw) {
				continue
			}
			if i > 0 {
				if _, negated := h.negators[words[i-1]]; negated {
					continue
				}
			}
			return true
		}
	}
	return false
}

func sameWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DetectYesNo reports an affirmative or negative answer. The affirmative list
// is checked first, so text matching both lists counts as Yes. A negated
// affirmative ("לא נכון", "not correct") does not count as Yes.
func (h *Heuristics) DetectYesNo(text string) Answer {
	n := Normalize(text)
	if h.containsAffirmation(n) {
		return Yes
	}
	if containsAny(n, h.lex.No) {
		return No
	}
	return Unknown
}

// DetectRefusal reports whether the caller asked to stop or hang up.
func (h *Heuristics) DetectRefusal(text string) bool {
	return containsAny(Normalize(text), h.lex.Refusal)
}

// ParseName extracts a candidate name. Leading filler words ("שמי",
// "קוראים לי") and trailing ones ("תודה") are dropped; the first remaining
// token is the first name and the rest form the last name.
func (h *Heuristics) ParseName(text string) (Name, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, text)
	tokens := strings.Fields(normalize(cleaned, false))
	i := 0
	for i < len(tokens) {
		if _, ok := h.stop[strings.ToLower(tokens[i])]; !ok {
			break
		}
		i++
	}
	tokens = tokens[i:]
	for len(tokens) > 0 {
		if _, ok := h.stop[strings.ToLower(tokens[len(tokens)-1])]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return Name{}, false
	}
	letters := 0
	for _, t := range tokens {
		for _, r := range t {
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}
	if letters < minNameLetters {
		return Name{}, false
	}
	return Name{First: tokens[0], Last: strings.Join(tokens[1:], " ")}, true
}

// ExtractPhone returns a 9 or 10 digit local number found in text, or "".
func (h *Heuristics) ExtractPhone(text string) string {
	if d := foldCountryCode(onlyDigits(text), h.countryCode); IsValidLocalPhone(d) {
		return d
	}

	var run strings.Builder
	for _, tok := range strings.Fields(strings.ToLower(removeMarks(text))) {
		subs := strings.FieldsFunc(tok, func(r rune) bool { return r == '-' || r == '_' })
		for _, sub := range subs {
			sub = strings.Map(func(r rune) rune {
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					return r
				}
				return -1
			}, sub)
			if sub == "" {
				continue
			}
			if d, ok := h.digitWord(sub); ok {
				run.WriteByte(d)
				continue
			}
			if isAllDigits(sub) {
				run.WriteString(sub)
			}
		}
	}

	digits := foldCountryCode(run.String(), h.countryCode)
	switch {
	case IsValidLocalPhone(digits):
		return digits
	case len(digits) > 10:
		if w := firstLocalWindow(digits, 10); w != "" {
			return w
		}
		return firstLocalWindow(digits, 9)
	}
	return ""
}

func (h *Heuristics) digitWord(w string) (byte, bool) {
	if d, ok := h.lex.Digits[w]; ok {
		return d, true
	}
	if c := h.lex.Conjunction; c != "" && strings.HasPrefix(w, c) {
		if d, ok := h.lex.Digits[strings.TrimPrefix(w, c)]; ok {
			return d, true
		}
	}
	return 0, false
}

// firstLocalWindow scans left to right for the first substring of the given
// length that starts with the local dialing prefix "0".
func firstLocalWindow(digits string, size int) string {
	for i := 0; i+size <= len(digits); i++ {
		if digits[i] == '0' {
			return digits[i : i+size]
		}
	}
	return ""
}

// IsValidLocalPhone reports whether digits has a valid local length.
func IsValidLocalPhone(digits string) bool {
	return len(digits) == 9 || len(digits) == 10
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func foldCountryCode(digits, countryCode string) string {
	if countryCode == "" || !strings.HasPrefix(digits, countryCode) {
		return digits
	}
	rest := strings.TrimPrefix(digits, countryCode)
	if rest == "" || rest[0] == '0' {
		return digits
	}
	if len(rest) == 8 || len(rest) == 9 {
		return "0" + rest
	}
	return digits
}

// LocalFromE164 converts a caller id such as "+972521234567" into the local
// form "0521234567". Returns "" when the number cannot be expressed locally.
func LocalFromE164(number, countryCode string) string {
	d := foldCountryCode(onlyDigits(number), countryCode)
	if strings.HasPrefix(d, "0") && IsValidLocalPhone(d) {
		return d
	}
	return ""
}

// Last4 returns the trailing four digits of a number.
func Last4(digits string) string {
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// SpokenDigits renders a local number digit by digit in groups
// ("0 5 2, 1 2 3, 4 5 6 7") so speech synthesis reads each digit.
func SpokenDigits(digits string) string {
	var groups []string
	switch len(digits) {
	case 10:
		groups = []string{digits[:3], digits[3:6], digits[6:]}
	case 9:
		groups = []string{digits[:2], digits[2:5], digits[5:]}
	default:
		groups = []string{digits}
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, strings.Join(strings.Split(g, ""), " "))
	}
	return strings.Join(parts, ", ")
}
