package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Honorifics are person titles stripped when comparing names. Stored names
// keep them as spoken.
var Honorifics = []string{
	"lic", "licenciado", "licenciada", "ing", "ingeniero", "ingeniera",
	"dr", "dra", "doctor", "doctora", "sr", "sra", "srta", "señor", "señora", "señorita",
	"mtro", "mtra", "maestro", "maestra", "arq", "c.p", "cp", "prof",
	"mr", "mrs", "ms", "miss",
}

var honorificSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Honorifics))
	for _, h := range Honorifics {
		set[foldAccents(h)] = struct{}{}
	}
	return set
}()

// NormalizeName lower-cases s, folds accents, drops punctuation other than
// '&' and collapses whitespace: "  Tecnoflex  Manufacturing, S.A. " and
// "tecnoflex manufacturing sa" compare equal.
func NormalizeName(s string) string {
	s = strings.ToLower(foldAccents(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '&':
			b.WriteRune(r)
		case r == '.' || r == '\'' || r == '’':
			// "S.A." -> "sa", "O'Neil" -> "oneil"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// StripHonorifics removes leading titles: "Lic. Sofía Galindo" -> "Sofía Galindo".
func StripHonorifics(person string) string {
	fields := strings.Fields(person)
	for len(fields) > 0 {
		key := strings.TrimSuffix(strings.ToLower(foldAccents(fields[0])), ".")
		if _, ok := honorificSet[key]; !ok {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// ClientMatchKey is the normalized (company, person) pair that identifies
// a client. Honorifics, case, accents and spacing do not distinguish clients.
func ClientMatchKey(company, person string) string {
	return NormalizeName(company) + "|" + NormalizeName(StripHonorifics(person))
}

// SameCompany reports whether two company names are equal after normalization.
func SameCompany(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}

// LoadTimezone resolves an IANA zone name or a fixed offset such as
// "UTC-06:00", "UTC+5" or "-0600".
func LoadTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}

	offset := strings.ToUpper(name)
	offset = strings.TrimPrefix(offset, "UTC")
	offset = strings.TrimPrefix(offset, "GMT")
	if offset == "" || (offset[0] != '+' && offset[0] != '-') {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	sign := 1
	if offset[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(offset[1:], ":", "")
	var hours, minutes int
	var err error
	switch len(digits) {
	case 1, 2:
		hours, err = strconv.Atoi(digits)
	case 3, 4:
		hours, err = strconv.Atoi(digits[:len(digits)-2])
		if err == nil {
			minutes, err = strconv.Atoi(digits[len(digits)-2:])
		}
	default:
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	if err != nil || hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return time.FixedZone(name, sign*(hours*3600+minutes*60)), nil
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
