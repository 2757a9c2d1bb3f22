// Package extraction turns normalized utterances into event and client
// candidates. It never touches storage and is deterministic given its inputs.
package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

const (
	DefaultDuration = time.Hour
	DefaultHour     = 9
)

// Options configures an Extractor.
type Options struct {
	// DefaultTimezone applies when an utterance names no timezone.
	DefaultTimezone string
	// DefaultDuration is the event length when no end time is stated.
	DefaultDuration time.Duration
	// DefaultHour is the start hour for events with a date but no time.
	DefaultHour int
	// KnownCompanies are recognized as companies with high confidence.
	KnownCompanies []string
}

// Extractor finds calendar events and clients in utterances.
type Extractor struct {
	m        *matcher
	lex      *Lexicon
	tzName   string
	loc      *time.Location
	duration time.Duration
	hour     int
	known    []string
}

// New compiles lex into an Extractor. A nil lex uses DefaultLexicon.
func New(lex *Lexicon, opts Options) (*Extractor, error) {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "UTC"
	}
	loc, err := models.LoadTimezone(opts.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("default timezone: %w", err)
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.DefaultHour < 0 || opts.DefaultHour > 23 {
		return nil, fmt.Errorf("default hour %d out of range 0-23", opts.DefaultHour)
	}

	m, err := newMatcher(lex)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		m:        m,
		lex:      lex,
		tzName:   opts.DefaultTimezone,
		loc:      loc,
		duration: opts.DefaultDuration,
		hour:     opts.DefaultHour,
		known:    opts.KnownCompanies,
	}, nil
}

// DefaultTimezone returns the zone name used when an utterance names none.
func (e *Extractor) DefaultTimezone() string {
	return e.tzName
}

// Extract scans each utterance on its own and returns candidates in
// utterance order; within an utterance the event comes before its clients.
// reference resolves relative expressions ("mañana", "next Tuesday").
// knownCompanies extends Options.KnownCompanies for this call.
func (e *Extractor) Extract(utterances []models.Utterance, reference time.Time, knownCompanies ...string) []models.Candidate {
	known := append(append([]string(nil), e.known...), knownCompanies...)
	out := []models.Candidate{}
	for _, u := range utterances {
		out = append(out, e.extractUtterance(u, reference, known)...)
	}
	return out
}

func (e *Extractor) extractUtterance(u models.Utterance, reference time.Time, known []string) []models.Candidate {
	text := u.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}
	baseSpan := models.Span{UtteranceIndex: u.Index, Speaker: u.Speaker, Text: text}

	loc, tzName, tzSource := e.loc, e.tzName, models.TimezoneDefault
	var exclude []span
	if tz, ok := e.m.findTimezone(text); ok {
		tzName, tzSource = tz.name, models.TimezoneExplicit
		if tz.location != nil {
			loc = tz.location
		}
		if strings.ContainsAny(text[tz.start:tz.end], "0123456789") {
			// "UTC-6" is not six o'clock.
			exclude = append(exclude, tz.span)
		}
	}
	local := reference.In(loc)

	dates := e.m.findDates(text, local)
	for _, d := range dates {
		exclude = append(exclude, d.span)
	}
	email, emailSpan, hasEmail := e.m.findEmail(text)
	if hasEmail {
		exclude = append(exclude, emailSpan)
	}
	phone, phoneSpan, hasPhone := e.m.findPhone(text, exclude)
	if hasPhone {
		exclude = append(exclude, phoneSpan)
	}
	rng, hasTime := pickTime(text, e.m.findTimes(text, exclude))

	companies := e.m.findCompanies(text, known)
	persons := e.m.findPersons(text, companies)

	var out []models.Candidate
	if ev, ok := e.eventCandidate(text, local, loc, tzName, tzSource, dates, rng, hasTime, companies, persons, u); ok {
		ev.Span = withMatch(baseSpan, text, ev.matched)
		out = append(out, ev.Candidate)
	}

	clients := clientCandidates(companies, persons)
	for i := range clients {
		if i == 0 {
			if hasEmail {
				clients[i].cand.Client.Email = email
			}
			if hasPhone {
				clients[i].cand.Client.Phone = phone
			}
		}
		clients[i].cand.Span = withMatch(baseSpan, text, clients[i].matched)
		out = append(out, clients[i].cand)
	}
	return out
}

type eventMatch struct {
	models.Candidate
	matched []span
}

func (e *Extractor) eventCandidate(
	text string,
	local time.Time,
	loc *time.Location,
	tzName, tzSource string,
	dates []dateHit,
	rng clockRange,
	hasTime bool,
	companies, persons []nameHit,
	u models.Utterance,
) (eventMatch, bool) {
	typeIdx, hasType := firstWord(e.m.eventType, text)
	intentIdx, hasIntent := firstWord(e.m.intent, text)
	hasDate := len(dates) > 0

	var conf models.Confidence
	switch {
	case hasDate && hasTime && (hasType || hasIntent):
		conf = models.ConfidenceHigh
	case hasDate && hasTime:
		conf = models.ConfidenceMedium
	case hasDate && (hasType || hasIntent):
		conf = models.ConfidenceMedium
	case hasTime && (hasType || hasIntent):
		conf = models.ConfidenceLow
	case !hasDate && !hasTime && hasIntent:
		conf = models.ConfidenceLow
	default:
		return eventMatch{}, false
	}

	var matched []span
	label := e.lex.DefaultSummary
	if hasType {
		label = e.m.eventTypes[strings.ToLower(strings.Join(strings.Fields(group(text, typeIdx, 1)), " "))]
		if label == "" {
			label = group(text, typeIdx, 1)
		}
		matched = append(matched, span{typeIdx[0], typeIdx[1]})
	}
	if hasIntent {
		matched = append(matched, span{intentIdx[0], intentIdx[1]})
	}

	ev := &models.EventCandidate{
		Summary:        label,
		Timezone:       tzName,
		TimezoneSource: tzSource,
		Description:    fmt.Sprintf("%s: %s", u.Speaker, text),
		Status:         e.status(text),
		Source:         models.EventSourceTranscript,
	}
	if len(companies) > 0 {
		ev.CompanyName = companies[0].name
		ev.Summary = label + " - " + companies[0].name
	}
	if len(persons) > 0 {
		ev.PersonName = persons[0].name
	}

	var start, end time.Time
	switch {
	case hasDate && hasTime:
		d := dates[0]
		matched = append(matched, d.span, rng.span)
		start = time.Date(d.date.Year(), d.date.Month(), d.date.Day(), rng.startH, rng.startM, 0, 0, loc)
		end = e.endOf(start, rng)
	case hasDate:
		d := dates[0]
		matched = append(matched, d.span)
		start = time.Date(d.date.Year(), d.date.Month(), d.date.Day(), e.hour, 0, 0, 0, loc)
		end = start.Add(e.duration)
	case hasTime:
		matched = append(matched, rng.span)
		start = time.Date(local.Year(), local.Month(), local.Day(), rng.startH, rng.startM, 0, 0, loc)
		if start.Before(local) {
			start = start.AddDate(0, 0, 1)
		}
		end = e.endOf(start, rng)
	}
	if !start.IsZero() {
		ev.Start, ev.End = &start, &end
	}

	return eventMatch{
		Candidate: models.Candidate{Kind: models.CandidateEvent, Confidence: conf, Event: ev},
		matched:   matched,
	}, true
}

// endOf applies a stated end clock on the start's day, or the default
// duration. A stated end at or before the start is kept as is so the
// validator can reject it.
func (e *Extractor) endOf(start time.Time, rng clockRange) time.Time {
	if !rng.hasEnd {
		return start.Add(e.duration)
	}
	return time.Date(start.Year(), start.Month(), start.Day(), rng.endH, rng.endM, 0, 0, start.Location())
}

func (e *Extractor) status(text string) string {
	if _, ok := firstWord(e.m.cancel, text); ok {
		return models.EventStatusCancelled
	}
	if _, ok := firstWord(e.m.tentative, text); ok {
		return models.EventStatusTentative
	}
	return models.EventStatusConfirmed
}

type clientMatch struct {
	cand    models.Candidate
	matched []span
}

// clientCandidates pairs the i-th company with the i-th person. Persons
// without a company are still reported, with low confidence, so the caller
// can ask who they work for.
func clientCandidates(companies, persons []nameHit) []clientMatch {
	var out []clientMatch
	for i, c := range companies {
		cc := &models.ClientCandidate{CompanyName: c.name}
		conf := c.confidence
		matched := []span{c.span}
		if i < len(persons) {
			cc.PersonName = persons[i].name
			conf = minConfidence(conf, persons[i].confidence)
			matched = append(matched, persons[i].span)
		}
		out = append(out, clientMatch{
			cand:    models.Candidate{Kind: models.CandidateClient, Confidence: conf, Client: cc},
			matched: matched,
		})
	}
	for i := len(companies); i < len(persons); i++ {
		out = append(out, clientMatch{
			cand: models.Candidate{
				Kind:       models.CandidateClient,
				Confidence: models.ConfidenceLow,
				Client:     &models.ClientCandidate{PersonName: persons[i].name},
			},
			matched: []span{persons[i].span},
		})
	}
	return out
}

func minConfidence(a, b models.Confidence) models.Confidence {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// withMatch sets Span.Match to the text between the earliest and latest
// matched fragment.
func withMatch(base models.Span, text string, matched []span) models.Span {
	if len(matched) == 0 {
		return base
	}
	lo, hi := matched[0].start, matched[0].end
	for _, s := range matched[1:] {
		lo = min(lo, s.start)
		hi = max(hi, s.end)
	}
	if lo < 0 || hi > len(text) || lo >= hi {
		return base
	}
	base.Match = strings.TrimSpace(text[lo:hi])
	return base
}
