package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var abbreviations = map[string]struct{}{
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "jr.": {}, "sr.": {},
	"prof.": {}, "rev.": {}, "gen.": {}, "col.": {}, "lt.": {}, "sgt.": {},
	"inc.": {}, "ltd.": {}, "corp.": {}, "co.": {}, "vs.": {}, "etc.": {},
	"i.e.": {}, "e.g.": {}, "a.m.": {}, "p.m.": {}, "u.s.": {}, "u.k.": {},
	"st.": {}, "mt.": {}, "no.": {},
}

// SplitSentences breaks text into sentences at terminal punctuation that is
// followed by whitespace. Whitespace inside a sentence collapses to a single
// space. Titles, common abbreviations and initials do not end a sentence.
func SplitSentences(text string) []string {
	var (
		out []string
		cur []string
	)
	for _, word := range strings.Fields(text) {
		cur = append(cur, word)
		if endsSentence(word) {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func endsSentence(word string) bool {
	w := strings.TrimRight(word, `"')]`)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}
	if _, ok := abbreviations[strings.ToLower(w)]; ok {
		return false
	}
	// Initials such as "J."
	if r, size := utf8.DecodeRuneInString(w); size+1 == len(w) && unicode.IsUpper(r) {
		return false
	}
	return true
}
