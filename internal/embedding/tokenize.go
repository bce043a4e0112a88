package embedding

import (
	"regexp"
	"strings"
	"unicode"
)

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// stopWords is the English stop word list applied before fitting and embedding.
var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be
		because been before being below between both but by can could did do does doing down
		during each few for from further had has have having he her here hers herself him
		himself his how i if in into is it its itself just me more most my myself no nor not
		now of off on once only or other our ours ourselves out over own same she should so
		some such than that the their theirs them themselves then there these they this those
		through to too under until up very was we were what when where which while who whom
		why will with would you your yours yourself yourselves also however thus using used
		use may might must shall within without via et al`) {
		stopWords[w] = true
	}
}

// Tokenize lower-cases text, removes URLs and symbols, and drops stop words
// and single-character tokens. The result is the token stream both model
// families are fit and queried on.
func Tokenize(text string) []string {
	text = urlPattern.ReplaceAllString(text, " ")
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 2 || stopWords[f] || isNumber(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
