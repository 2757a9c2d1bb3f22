package extraction

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

type nameHit struct {
	span
	name       string
	confidence models.Confidence
}

// findCompanies returns company mentions in text order, one per normalized
// name, keeping the most confident reading.
func (m *matcher) findCompanies(text string, known []string) []nameHit {
	var hits []nameHit

	for _, idx := range findWords(m.companySuffix, text) {
		words, skipped := m.stripStopWords(group(text, idx, 1))
		if words == "" {
			continue
		}
		hits = append(hits, nameHit{
			span:       span{idx[0] + skipped, idx[1]},
			name:       words + " " + group(text, idx, 2),
			confidence: models.ConfidenceHigh,
		})
	}

	for _, idx := range findWords(m.companyPrefix, text) {
		hits = append(hits, nameHit{
			span:       span{idx[0], idx[1]},
			name:       strings.Join(strings.Fields(group(text, idx, 0)), " "),
			confidence: models.ConfidenceHigh,
		})
	}

	folded := " " + models.NormalizeName(text) + " "
	for _, k := range known {
		nk := models.NormalizeName(k)
		if nk == "" {
			continue
		}
		re := regexp.MustCompile(`(?i:` + alternation([]string{k}) + `)`)
		if idx, ok := firstWord(re, text); ok {
			hits = append(hits, nameHit{span: span{idx[0], idx[1]}, name: k, confidence: models.ConfidenceHigh})
		} else if strings.Contains(folded, " "+nk+" ") {
			// Spelled differently ("Compañía" vs "Compania"); no usable position.
			hits = append(hits, nameHit{name: k, confidence: models.ConfidenceHigh})
		}
	}

	for _, idx := range findWords(m.companyCue, text) {
		words, skipped := m.stripStopWords(group(text, idx, 2))
		if words == "" {
			continue
		}
		hits = append(hits, nameHit{
			span:       span{idx[4] + skipped, idx[5]},
			name:       words,
			confidence: models.ConfidenceMedium,
		})
	}

	for _, idx := range findWords(m.camelCase, text) {
		hits = append(hits, nameHit{
			span:       span{idx[0], idx[1]},
			name:       group(text, idx, 0),
			confidence: models.ConfidenceMedium,
		})
	}

	return dedupeNames(hits)
}

// findPersons returns person mentions in text order. Titled names come
// first; cue-introduced names ("con Juan Pérez") that overlap a titled name
// or a company are discarded.
func (m *matcher) findPersons(text string, companies []nameHit) []nameHit {
	companySpans := make([]span, 0, len(companies))
	companyNames := make(map[string]struct{}, len(companies))
	for _, c := range companies {
		companySpans = append(companySpans, c.span)
		companyNames[models.NormalizeName(c.name)] = struct{}{}
	}

	var hits []nameHit
	var taken []span

	for _, idx := range findWords(m.titledPerson, text) {
		end := idx[1]
		for _, c := range companySpans {
			if c.start > idx[4] && c.start < end {
				end = c.start
			}
		}
		name := trimConnectors(text[idx[0]:end])
		nameWords := strings.Fields(models.StripHonorifics(name))
		if len(nameWords) == 0 {
			continue
		}
		conf := models.ConfidenceMedium
		if len(nameWords) >= 2 {
			conf = models.ConfidenceHigh
		}
		h := nameHit{span: span{idx[0], idx[0] + len(name)}, name: name, confidence: conf}
		hits = append(hits, h)
		taken = append(taken, h.span)
	}

	for _, idx := range findWords(m.personCue, text) {
		words, skipped := m.stripStopWords(group(text, idx, 2))
		if words == "" {
			continue
		}
		s := span{idx[4] + skipped, idx[5]}
		if overlapsAny(s, taken) || overlapsAny(s, companySpans) {
			continue
		}
		if _, isCompany := companyNames[models.NormalizeName(words)]; isCompany {
			continue
		}
		conf := models.ConfidenceLow
		if len(strings.Fields(words)) >= 2 {
			conf = models.ConfidenceMedium
		}
		hits = append(hits, nameHit{span: s, name: words, confidence: conf})
		taken = append(taken, s)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

// stripStopWords drops leading words that cannot start a name ("Hola",
// "Mañana", "Reunión") and reports how many bytes were removed.
func (m *matcher) stripStopWords(s string) (string, int) {
	skipped := 0
	rest := s
	for {
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		skipped += len(rest) - len(trimmed)
		rest = trimmed
		if rest == "" {
			return "", skipped
		}
		word := rest
		if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
			word = rest[:i]
		}
		if _, stop := m.stop[models.NormalizeName(word)]; !stop {
			return strings.Join(strings.Fields(rest), " "), skipped
		}
		skipped += len(word)
		rest = rest[len(word):]
	}
}

// trimConnectors removes dangling "de", "del", "de la" left after cutting a
// person name at a company mention.
func trimConnectors(s string) string {
	s = strings.TrimRightFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == ',' })
	for {
		lower := strings.ToLower(s)
		cut := false
		for _, c := range []string{" de la", " del", " de", " from", " of"} {
			if strings.HasSuffix(lower, c) {
				s = strings.TrimRightFunc(s[:len(s)-len(c)], unicode.IsSpace)
				cut = true
				break
			}
		}
		if !cut {
			return s
		}
	}
}

// dedupeNames keeps one hit per normalized name, preferring higher
// confidence, and returns them in text order.
func dedupeNames(hits []nameHit) []nameHit {
	best := make(map[string]int)
	var out []nameHit
	for _, h := range hits {
		key := models.NormalizeName(h.name)
		if key == "" {
			continue
		}
		if i, ok := best[key]; ok {
			if h.confidence.Rank() > out[i].confidence.Rank() {
				out[i] = h
			}
			continue
		}
		best[key] = len(out)
		out = append(out, h)
	}

	// A medium hit inside a high one ("Tecnoflex" in "Tecnoflex Manufacturing")
	// is the same mention.
	filtered := out[:0]
	for i, h := range out {
		contained := false
		for j, o := range out {
			if i != j && o.confidence.Rank() >= h.confidence.Rank() && o.start <= h.start && h.end <= o.end && (o.end-o.start) > (h.end-h.start) {
				contained = true
				break
			}
		}
		if !contained {
			filtered = append(filtered, h)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].start < filtered[j].start })
	return filtered
}
