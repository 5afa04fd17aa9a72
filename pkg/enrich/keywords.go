package enrich

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has have
		this that with from they will would there their what which when where who
		into than then them these those been being were its also such only other
		some more most very just over under about after before between through
		de da do das dos em um uma uns umas para por com sem sob que nao não se
		na no nas nos ao aos ou como mais mas foi ser sao são tem pelo pela pelos
		pelas este esta isso isto esse essa entre sobre quando onde qual quais`) {
		stopwords[w] = true
	}
}

// Keywords devolve os n termos mais frequentes, sem stopwords e com pelo
// menos três letras. Empates seguem a ordem alfabética.
func Keywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(token)) < 3 || stopwords[token] || isNumber(token) {
			continue
		}
		counts[token]++
	}

	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
