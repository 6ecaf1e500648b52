package enrich

import "strings"

// stopwords holds small per-language function-word sets. Dictated kitchen
// phrases are short, so a handful of high-frequency words per language is
// enough to pick a hint.
var stopwords = map[string]map[string]struct{}{
	"de": wordSet("der die das und ist mit ein eine einen für von zu im auf nicht auch aus bei nach wir ich es den dem frisch"),
	"en": wordSet("the and is with a an for of to in on not also from at after we i it this that fresh"),
	"fr": wordSet("le la les et est avec un une pour de du des à dans sur pas aussi chez après nous je il ce très frais"),
}

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// DetectLanguage guesses the language of text by stopword scoring across
// German, English, and French. It returns the ISO 639-1 code of the best
// match and its score (matched words over total words). When no stopword
// matches, the language is empty and the caller should fall back to its
// configured default.
func DetectLanguage(text string) (lang string, score float64) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return "", 0
	}

	best := ""
	bestHits := 0
	for _, code := range []string{"de", "en", "fr"} {
		set := stopwords[code]
		hits := 0
		for _, tok := range tokens {
			tok = strings.Trim(tok, ".,;:!?")
			if _, ok := set[tok]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best = code
			bestHits = hits
		}
	}
	if bestHits == 0 {
		return "", 0
	}
	return best, float64(bestHits) / float64(len(tokens))
}
