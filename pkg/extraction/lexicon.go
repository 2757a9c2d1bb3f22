package extraction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Lexicon holds the language-dependent vocabulary of the extractor.
// Keys are matched case-insensitively on word boundaries, except timezone
// abbreviations written in upper case, which must appear in upper case.
type Lexicon struct {
	// EventTypes maps a meeting noun to the summary label it produces.
	EventTypes map[string]string `yaml:"event_types"`
	// Intents are scheduling verbs; they make an event without a noun.
	Intents        []string `yaml:"intents"`
	DefaultSummary string   `yaml:"default_summary"`

	// RelativeDays maps a word to its day offset from the reference date.
	RelativeDays map[string]int `yaml:"relative_days"`
	// Weekdays maps a name to its time.Weekday number (0 = Sunday).
	Weekdays  map[string]int `yaml:"weekdays"`
	NextWords []string       `yaml:"next_words"`
	Months    map[string]int `yaml:"months"`
	// Dayparts maps "tarde", "morning" etc. to "am" or "pm".
	Dayparts map[string]string `yaml:"dayparts"`
	// Timezones maps spoken zone names and abbreviations to IANA names.
	Timezones map[string]string `yaml:"timezones"`

	Titles          []string `yaml:"titles"`
	PersonCues      []string `yaml:"person_cues"`
	CompanySuffixes []string `yaml:"company_suffixes"`
	CompanyPrefixes []string `yaml:"company_prefixes"`
	CompanyCues     []string `yaml:"company_cues"`
	// StopWords are capitalized words that never start a name.
	StopWords []string `yaml:"stop_words"`

	TentativeWords []string `yaml:"tentative_words"`
	CancelWords    []string `yaml:"cancel_words"`
}

// DefaultLexicon returns the built-in Spanish/English vocabulary.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		EventTypes: map[string]string{
			"reunión": "Reunión", "reunion": "Reunión", "junta": "Junta", "cita": "Cita",
			"llamada": "Llamada", "videollamada": "Videollamada", "diagnóstico": "Diagnóstico",
			"diagnostico": "Diagnóstico", "demo": "Demo", "demostración": "Demostración",
			"presentación": "Presentación", "presentacion": "Presentación", "visita": "Visita",
			"capacitación": "Capacitación", "capacitacion": "Capacitación", "seguimiento": "Seguimiento",
			"sesión": "Sesión", "sesion": "Sesión", "entrevista": "Entrevista", "comida": "Comida",
			"desayuno": "Desayuno", "kickoff": "Kickoff", "meeting": "Meeting", "call": "Call",
			"appointment": "Appointment", "presentation": "Presentation", "visit": "Visit",
			"training": "Training", "follow-up": "Follow-up", "interview": "Interview",
			"workshop": "Workshop", "taller": "Taller", "auditoría": "Auditoría", "auditoria": "Auditoría",
		},
		Intents: []string{
			"agendar", "agendemos", "agenda", "agéndame", "agendame", "programar", "programemos",
			"reservar", "apartar", "calendarizar", "schedule", "book", "set up", "let's meet",
		},
		DefaultSummary: "Reunión",

		RelativeDays: map[string]int{
			"hoy": 0, "today": 0, "mañana": 1, "manana": 1, "tomorrow": 1,
			"pasado mañana": 2, "pasado manana": 2, "day after tomorrow": 2,
		},
		Weekdays: map[string]int{
			"domingo": 0, "lunes": 1, "martes": 2, "miércoles": 3, "miercoles": 3,
			"jueves": 4, "viernes": 5, "sábado": 6, "sabado": 6,
			"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3, "thursday": 4,
			"friday": 5, "saturday": 6,
		},
		NextWords: []string{"próximo", "proximo", "próxima", "proxima", "siguiente", "este", "esta", "el", "next", "this", "on"},
		Months: map[string]int{
			"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
			"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10,
			"noviembre": 11, "diciembre": 12,
			"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
			"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
		},
		Dayparts: map[string]string{
			"mañana": "am", "manana": "am", "morning": "am",
			"tarde": "pm", "noche": "pm", "afternoon": "pm", "evening": "pm",
		},
		Timezones: map[string]string{
			"hora del centro":             "America/Mexico_City",
			"tiempo del centro":           "America/Mexico_City",
			"hora de la ciudad de méxico": "America/Mexico_City",
			"hora de méxico":              "America/Mexico_City",
			"hora de monterrey":           "America/Monterrey",
			"hora del pacífico":           "America/Tijuana",
			"hora del pacifico":           "America/Tijuana",
			"hora de cancún":              "America/Cancun",
			"hora de cancun":              "America/Cancun",
			"hora de españa":              "Europe/Madrid",
			"hora de colombia":            "America/Bogota",
			"hora de bogotá":              "America/Bogota",
			"eastern time":                "America/New_York",
			"central time":                "America/Chicago",
			"pacific time":                "America/Los_Angeles",
			"CDMX":                        "America/Mexico_City",
			"EST":                         "America/New_York",
			"EDT":                         "America/New_York",
			"CST":                         "America/Chicago",
			"CDT":                         "America/Chicago",
			"MST":                         "America/Denver",
			"PST":                         "America/Los_Angeles",
			"PDT":                         "America/Los_Angeles",
			"UTC":                         "UTC",
			"GMT":                         "UTC",
			"CET":                         "Europe/Madrid",
		},

		Titles: []string{
			"Licenciado", "Licenciada", "Lic", "Ingeniero", "Ingeniera", "Ing", "Doctora", "Doctor",
			"Dra", "Dr", "Señorita", "Señora", "Señor", "Srta", "Sra", "Sr", "Maestro", "Maestra",
			"Mtro", "Mtra", "Arq", "C.P", "Prof", "Mrs", "Mr", "Ms", "Miss",
		},
		PersonCues: []string{"hablé con", "hable con", "de parte de", "contacto", "contact", "con", "with"},
		CompanySuffixes: []string{
			"S.A. de C.V.", "SA de CV", "S. de R.L.", "S.A.", "S.C.", "Inc.", "Inc", "LLC", "Ltd.", "Ltd",
			"Corp.", "Corp", "Corporation", "Company", "Co.", "GmbH", "Manufacturing", "Group",
			"Solutions", "Technologies", "Tech", "Industries", "Logistics", "Consulting", "Systems",
			"Labs", "Partners", "Holdings", "Software", "Soluciones", "Consultores", "Servicios",
		},
		CompanyPrefixes: []string{
			"Grupo", "Industrias", "Corporativo", "Comercializadora", "Distribuidora", "Constructora",
			"Laboratorios", "Farmacias", "Transportes", "Despacho",
		},
		CompanyCues: []string{
			"la empresa", "empresa", "la compañía", "compañía", "compania", "el cliente", "cliente",
			"the company", "company", "client", "customer", "firma",
		},
		StopWords: []string{
			"el", "la", "los", "las", "un", "una", "y", "o", "pero", "con", "de", "del", "para", "por",
			"hola", "buenos", "buenas", "bueno", "perfecto", "claro", "sí", "si", "no", "ok", "okay",
			"entonces", "gracias", "listo", "muy", "bien", "oye", "mira", "también", "tambien",
			"the", "a", "an", "and", "or", "but", "with", "for", "hi", "hello", "yes", "great",
			"thanks", "sure", "let's", "lets", "we", "i", "you", "nosotros", "yo", "usted", "ustedes",
		},
		TentativeWords: []string{"tentativo", "tentativa", "tentativamente", "tal vez", "quizá", "quizás", "quizas", "provisional", "maybe", "tentative", "pencil in"},
		CancelWords:    []string{"cancelar", "cancela", "cancelemos", "cancelada", "cancelado", "cancel", "cancelled", "canceled", "call off"},
	}
}

// LoadLexicon reads a YAML lexicon and layers it over the defaults.
// Maps in the file extend the defaults; lists replace them.
func LoadLexicon(path string) (*Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon %s: %w", path, err)
	}
	if err := lex.validate(); err != nil {
		return nil, fmt.Errorf("invalid lexicon %s: %w", path, err)
	}
	return lex, nil
}

func (l *Lexicon) validate() error {
	for word, wd := range l.Weekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("weekday %q: %d out of range 0-6", word, wd)
		}
	}
	for word, m := range l.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("month %q: %d out of range 1-12", word, m)
		}
	}
	for word, dp := range l.Dayparts {
		if dp != "am" && dp != "pm" {
			return fmt.Errorf("daypart %q: %q must be am or pm", word, dp)
		}
	}
	for phrase, zone := range l.Timezones {
		if _, err := models.LoadTimezone(zone); err != nil {
			return fmt.Errorf("timezone %q: %w", phrase, err)
		}
	}
	if l.DefaultSummary == "" {
		return fmt.Errorf("default_summary is required")
	}
	return nil
}
