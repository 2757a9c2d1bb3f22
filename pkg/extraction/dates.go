package extraction

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

type dateHit struct {
	span
	date     time.Time // midnight in the reference location
	absolute bool      // spelled-out calendar date, as opposed to "mañana" or "martes"
}

// findDates returns every date expression in text, resolved against ref.
// ref must already be in the target location.
func (m *matcher) findDates(text string, ref time.Time) []dateHit {
	loc := ref.Location()
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	var hits []dateHit

	add := func(idx []int, d time.Time, ok, absolute bool) {
		if ok {
			hits = append(hits, dateHit{span: span{idx[0], idx[1]}, date: d, absolute: absolute})
		}
	}

	for _, idx := range findWords(m.isoDate, text) {
		y, _ := strconv.Atoi(group(text, idx, 1))
		mo, _ := strconv.Atoi(group(text, idx, 2))
		d, _ := strconv.Atoi(group(text, idx, 3))
		date, ok := mkDate(y, mo, d, loc)
		add(idx, date, ok, true)
	}

	for _, idx := range findWords(m.slashDate, text) {
		d, _ := strconv.Atoi(group(text, idx, 1))
		mo, _ := strconv.Atoi(group(text, idx, 2))
		date, ok := m.withYear(group(text, idx, 3), mo, d, refDay)
		add(idx, date, ok, true)
	}

	for _, idx := range findWords(m.dayMonthDate, text) {
		d, _ := strconv.Atoi(group(text, idx, 1))
		mo := m.months[strings.ToLower(group(text, idx, 2))]
		date, ok := m.withYear(group(text, idx, 3), mo, d, refDay)
		add(idx, date, ok, true)
	}

	for _, idx := range findWords(m.monthDayDate, text) {
		if idx[1] < len(text) && (text[idx[1]] == ':' || text[idx[1]] == '.') && idx[1]+1 < len(text) && isDigit(text[idx[1]+1]) {
			// "noviembre 10:30" is a time after a month name, not the 10th.
			continue
		}
		mo := m.months[strings.ToLower(group(text, idx, 1))]
		d, _ := strconv.Atoi(group(text, idx, 2))
		date, ok := m.withYear(group(text, idx, 3), mo, d, refDay)
		add(idx, date, ok, true)
	}

	for _, idx := range findWords(m.relativeDay, text) {
		if m.isDaypartUse(text, idx[0]) {
			continue
		}
		offset := m.relDays[strings.ToLower(strings.Join(strings.Fields(group(text, idx, 1)), " "))]
		add(idx, refDay.AddDate(0, 0, offset), true, false)
	}

	for _, idx := range findWords(m.weekday, text) {
		wd := time.Weekday(m.weekdays[strings.ToLower(group(text, idx, 2))])
		ahead := (int(wd) - int(refDay.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		add(idx, refDay.AddDate(0, 0, ahead), true, false)
	}

	// Spelled-out dates win over relative words in the same utterance
	// ("el martes 25 de noviembre"), then earliest position.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].absolute != hits[j].absolute {
			return hits[i].absolute
		}
		return hits[i].start < hits[j].start
	})
	return hits
}

// isDaypartUse reports whether the word at pos is "mañana" in "de la mañana",
// i.e. the morning rather than tomorrow.
func (m *matcher) isDaypartUse(text string, pos int) bool {
	before := strings.Fields(strings.ToLower(text[:pos]))
	return len(before) > 0 && (before[len(before)-1] == "la" || before[len(before)-1] == "the")
}

// withYear builds a date from an optional year string. A missing year picks
// the next occurrence on or after refDay.
func (m *matcher) withYear(yearStr string, month, day int, refDay time.Time) (time.Time, bool) {
	if yearStr != "" {
		y, _ := strconv.Atoi(yearStr)
		if len(yearStr) == 2 {
			y += 2000
		}
		return mkDate(y, month, day, refDay.Location())
	}
	date, ok := mkDate(refDay.Year(), month, day, refDay.Location())
	if ok && date.Before(refDay) {
		date, ok = mkDate(refDay.Year()+1, month, day, refDay.Location())
	}
	return date, ok
}

// mkDate rejects dates time.Date would normalize (31 de febrero).
func mkDate(y, mo, d int, loc *time.Location) (time.Time, bool) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

type timeHit struct {
	span
	prefix   string
	hour     int
	minute   int
	meridiem string // "am", "pm" or "" when not stated
	strong   bool   // unambiguous clock time, not just a number
}

// clock converts the hit to a 24h clock. Bare hours 1-6 read as afternoon.
func (h timeHit) clock() (int, int) {
	hr := h.hour
	switch h.meridiem {
	case "pm":
		if hr < 12 {
			hr += 12
		}
	case "am":
		if hr == 12 {
			hr = 0
		}
	default:
		if hr >= 1 && hr <= 6 {
			hr += 12
		}
	}
	return hr, h.minute
}

var (
	strongPrefixes = map[string]bool{"a las": true, "a la": true, "at": true, "las": true, "la": true, "@": true}
	rangeStarters  = map[string]bool{"de": true, "desde": true, "from": true}
	rangeOpeners   = map[string]bool{"a": true, "to": true, "hasta": true, "until": true}
	rangeJoiners   = map[string]bool{"-": true, "–": true, "—": true, "a": true, "to": true, "hasta": true, "until": true, "y": true, "and": true}
)

// findTimes returns clock expressions outside the excluded spans (dates,
// phone numbers), in text order.
func (m *matcher) findTimes(text string, exclude []span) []timeHit {
	var hits []timeHit
	for _, idx := range m.clock.FindAllStringSubmatchIndex(text, -1) {
		h, ok := m.parseTime(text, idx)
		if !ok || overlapsAny(h.span, exclude) {
			continue
		}
		hits = append(hits, h)
	}
	return hits
}

func (m *matcher) parseTime(text string, idx []int) (timeHit, bool) {
	h := timeHit{span: span{idx[0], idx[1]}}

	h.prefix = strings.ToLower(strings.Join(strings.Fields(group(text, idx, 1)), " "))
	if h.prefix != "" && !boundaryBefore(text, idx[2]) {
		// "hola 10": the prefix is the tail of another word.
		h.prefix = ""
		h.start = idx[4]
	}
	if !boundaryBefore(text, h.start) {
		return h, false
	}

	digitsEnd := idx[5]
	if idx[6] >= 0 {
		digitsEnd = idx[7]
	}
	if digitsEnd < len(text) && isDigit(text[digitsEnd]) {
		return h, false
	}

	h.hour, _ = strconv.Atoi(group(text, idx, 2))
	if mins := group(text, idx, 3); mins != "" {
		h.minute, _ = strconv.Atoi(mins)
		h.strong = true
	}

	mer := strings.ToLower(group(text, idx, 4))
	daypart := strings.ToLower(group(text, idx, 5))
	if mer != "" && !strings.HasSuffix(mer, ".") && !boundaryAfter(text, idx[9]) {
		// "10 amigos"
		mer, daypart = "", ""
		h.end = digitsEnd
	}
	if daypart != "" && !boundaryAfter(text, idx[11]) {
		daypart = ""
		if mer != "" {
			h.end = idx[9]
		} else {
			h.end = digitsEnd
		}
	}
	if !boundaryAfter(text, h.end) && text[h.end-1] != '.' {
		return h, false
	}

	switch {
	case strings.HasPrefix(mer, "a"):
		h.meridiem = "am"
	case strings.HasPrefix(mer, "p"):
		h.meridiem = "pm"
	}
	if h.meridiem == "" && daypart != "" {
		h.meridiem = m.dayparts[daypart]
	}

	if h.meridiem != "" || strongPrefixes[h.prefix] {
		h.strong = true
	}
	if h.hour > 23 || (h.meridiem != "" && h.hour > 12) {
		return h, false
	}
	return h, true
}

// clockRange is a resolved start clock and optional end clock.
type clockRange struct {
	span
	startH, startM int
	endH, endM     int
	hasEnd         bool
}

// pickTime returns the first strong clock time in hits, joined with the
// following hit when the two form a range ("de 9:30 a 11:00", "9-10:30",
// "de 11 a 1").
func pickTime(text string, hits []timeHit) (clockRange, bool) {
	for i, h := range hits {
		if i+1 < len(hits) {
			next := hits[i+1]
			between := strings.ToLower(strings.TrimSpace(text[h.end:next.start]))
			joined := rangeJoiners[between] || (between == "" && rangeOpeners[next.prefix])
			if joined && (h.strong || next.strong || rangeStarters[h.prefix]) {
				return buildRange(h, next), true
			}
		}
		if h.strong {
			hr, mi := h.clock()
			return clockRange{span: h.span, startH: hr, startM: mi}, true
		}
	}
	return clockRange{}, false
}

func buildRange(start, end timeHit) clockRange {
	if end.meridiem == "" && start.meridiem == "pm" {
		end.meridiem = "pm"
	}
	sh, sm := start.clock()
	eh, em := end.clock()
	if eh*60+em <= sh*60+sm && end.meridiem == "" && eh+12 < 24 {
		eh += 12
	}
	return clockRange{
		span:   span{start.start, end.end},
		startH: sh, startM: sm,
		endH: eh, endM: em,
		hasEnd: true,
	}
}

type tzHit struct {
	span
	name     string
	location *time.Location // nil when the name does not resolve
}

// findTimezone returns the first explicit timezone mention in text.
func (m *matcher) findTimezone(text string) (tzHit, bool) {
	var hits []tzHit
	for _, idx := range findWords(m.tzOffset, text) {
		name := "UTC" + strings.ReplaceAll(strings.ReplaceAll(group(text, idx, 1), " ", ""), "−", "-")
		hits = append(hits, m.tzHit(idx, name))
	}
	for _, idx := range findWords(m.tzPhrase, text) {
		key := strings.ToLower(strings.Join(strings.Fields(group(text, idx, 1)), " "))
		hits = append(hits, m.tzHit(idx, m.tzPhrases[key]))
	}
	for _, idx := range findWords(m.tzAbbrev, text) {
		hits = append(hits, m.tzHit(idx, m.tzAbbrevs[group(text, idx, 1)]))
	}
	for _, idx := range findWords(m.tzIANA, text) {
		hits = append(hits, m.tzHit(idx, group(text, idx, 0)))
	}
	if len(hits) == 0 {
		return tzHit{}, false
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits[0], true
}

func (m *matcher) tzHit(idx []int, name string) tzHit {
	h := tzHit{span: span{idx[0], idx[1]}, name: name}
	if loc, err := models.LoadTimezone(name); err == nil {
		h.location = loc
	}
	return h
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
