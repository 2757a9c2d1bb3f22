package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Building blocks shared by the name patterns. A name word starts with an
// upper-case letter; connectors allow "María de la Cruz".
const (
	nameWord    = `\p{Lu}[\p{L}\p{M}'’\-]+`
	personName  = nameWord + `(?:\s+(?:de\s+la\s+|del\s+|van\s+|von\s+)?` + nameWord + `){0,3}`
	companyWord = `\p{Lu}[\p{L}\p{M}\d&'’\-]*`
	companyName = companyWord + `(?:\s+` + companyWord + `){0,3}`
)

// matcher is the compiled form of a Lexicon.
type matcher struct {
	isoDate      *regexp.Regexp
	slashDate    *regexp.Regexp
	dayMonthDate *regexp.Regexp
	monthDayDate *regexp.Regexp
	relativeDay  *regexp.Regexp
	weekday      *regexp.Regexp
	clock        *regexp.Regexp

	tzPhrase *regexp.Regexp
	tzAbbrev *regexp.Regexp
	tzOffset *regexp.Regexp
	tzIANA   *regexp.Regexp

	eventType *regexp.Regexp
	intent    *regexp.Regexp
	tentative *regexp.Regexp
	cancel    *regexp.Regexp

	titledPerson  *regexp.Regexp
	personCue     *regexp.Regexp
	companySuffix *regexp.Regexp
	companyPrefix *regexp.Regexp
	companyCue    *regexp.Regexp
	camelCase     *regexp.Regexp
	email         *regexp.Regexp
	phone         *regexp.Regexp

	months     map[string]int
	relDays    map[string]int
	weekdays   map[string]int
	dayparts   map[string]string
	tzPhrases  map[string]string
	tzAbbrevs  map[string]string
	eventTypes map[string]string
	stop       map[string]struct{}
}

type compiler struct{ err error }

func (c *compiler) compile(pattern string) *regexp.Regexp {
	if c.err != nil {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		c.err = fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}
	return re
}

func newMatcher(lex *Lexicon) (*matcher, error) {
	m := &matcher{
		months:     lowerKeys(lex.Months),
		relDays:    lowerKeys(lex.RelativeDays),
		weekdays:   lowerKeys(lex.Weekdays),
		dayparts:   lowerKeys(lex.Dayparts),
		eventTypes: lowerKeys(lex.EventTypes),
		tzPhrases:  make(map[string]string),
		tzAbbrevs:  make(map[string]string),
	}
	for k, zone := range lex.Timezones {
		if k == strings.ToUpper(k) {
			m.tzAbbrevs[k] = zone
		} else {
			m.tzPhrases[strings.Join(strings.Fields(strings.ToLower(k)), " ")] = zone
		}
	}
	for k, offset := range lex.RelativeDays {
		m.relDays[strings.Join(strings.Fields(strings.ToLower(k)), " ")] = offset
	}

	m.stop = make(map[string]struct{})
	for _, list := range [][]string{
		lex.StopWords, lex.NextWords, lex.Intents, lex.PersonCues, lex.CompanyCues,
		lex.TentativeWords, lex.CancelWords,
		keys(lex.RelativeDays), keys(lex.Weekdays), keys(lex.Months),
		keys(lex.EventTypes), keys(lex.Dayparts),
	} {
		for _, phrase := range list {
			for _, w := range strings.Fields(models.NormalizeName(phrase)) {
				m.stop[w] = struct{}{}
			}
		}
	}

	months := alternation(keys(lex.Months))
	c := &compiler{}

	m.isoDate = c.compile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	m.slashDate = c.compile(`(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?`)
	m.dayMonthDate = c.compile(`(\d{1,2})(?:\s+(?i:de))?\s+(?i:(` + months + `))(?:,?\s+(?:(?i:de|del)\s+)?(\d{4}))?`)
	m.monthDayDate = c.compile(`(?i:(` + months + `))\s+(\d{1,2})(?i:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)
	m.relativeDay = c.compile(`(?i:(` + alternation(keys(lex.RelativeDays)) + `))`)
	m.weekday = c.compile(`(?i:(?:(` + alternation(lex.NextWords) + `)\s+)?(` + alternation(keys(lex.Weekdays)) + `))`)
	m.clock = c.compile(`(?i)(?:(a\s+las|a\s+la|at|las|la|from|de|desde|to|hasta|until|a|@)\s*)?` +
		`(\d{1,2})(?:[:.h]([0-5]\d))?` +
		`(?:\s*(a\.\s?m\.|p\.\s?m\.|am|pm|hrs\.?|hr|hs|horas|hora|h))?` +
		`(?:\s+(?:de\s+la|por\s+la|en\s+la|in\s+the)\s+(` + alternation(keys(lex.Dayparts)) + `))?`)

	m.tzPhrase = c.compile(`(?i:(` + alternation(keys(m.tzPhrases)) + `))`)
	m.tzAbbrev = c.compile(`(` + alternation(keys(m.tzAbbrevs)) + `)`)
	m.tzOffset = c.compile(`(?:UTC|GMT)\s?([+\-−]\s?\d{1,2}(?::?\d{2})?)`)
	m.tzIANA = c.compile(`[A-Z][A-Za-z]+/[A-Z][A-Za-z_]+(?:/[A-Z][A-Za-z_]+)?`)

	m.eventType = c.compile(`(?i:(` + alternation(keys(lex.EventTypes)) + `))`)
	m.intent = c.compile(`(?i:(` + alternation(lex.Intents) + `))`)
	m.tentative = c.compile(`(?i:(` + alternation(lex.TentativeWords) + `))`)
	m.cancel = c.compile(`(?i:(` + alternation(lex.CancelWords) + `))`)

	m.titledPerson = c.compile(`(?i:(` + alternation(lex.Titles) + `))\.?\s+(` + personName + `)`)
	m.personCue = c.compile(`(?i:(` + alternation(lex.PersonCues) + `))\s+(` + personName + `)`)
	m.companySuffix = c.compile(`((?:\p{Lu}[\p{L}\p{M}\d&'’.\-]*\s+){1,4})(?i:(` + alternation(lex.CompanySuffixes) + `))`)
	m.companyPrefix = c.compile(`(?i:(` + alternation(lex.CompanyPrefixes) + `))\s+` + companyName)
	m.companyCue = c.compile(`(?i:(` + alternation(lex.CompanyCues) + `))\s+(` + companyName + `)`)
	m.camelCase = c.compile(`\p{Lu}\p{Ll}+(?:\p{Lu}[\p{Ll}\d]*)+`)
	m.email = c.compile(`[\w.+\-]+@[\w\-]+(?:\.[\w\-]+)+`)
	m.phone = c.compile(`\+?\d[\d\s\-().]{6,}\d`)

	if c.err != nil {
		return nil, c.err
	}
	return m, nil
}

// firstWord returns the first boundary-aligned match of re, if any.
func firstWord(re *regexp.Regexp, s string) ([]int, bool) {
	hits := findWords(re, s)
	if len(hits) == 0 {
		return nil, false
	}
	return hits[0], true
}

// findEmail returns the first e-mail address in text.
func (m *matcher) findEmail(text string) (string, span, bool) {
	idx := m.email.FindStringIndex(text)
	if idx == nil {
		return "", span{}, false
	}
	return text[idx[0]:idx[1]], span{idx[0], idx[1]}, true
}

// findPhone returns the first run of at least eight digits that is not part
// of a date.
func (m *matcher) findPhone(text string, exclude []span) (string, span, bool) {
	for _, idx := range findWords(m.phone, text) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, exclude) {
			continue
		}
		raw := text[idx[0]:idx[1]]
		digits := 0
		for _, r := range raw {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 8 {
			return strings.TrimSpace(raw), s, true
		}
	}
	return "", span{}, false
}
