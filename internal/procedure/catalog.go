package procedure

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hackgods/clinic-booking-agent/internal/textmatch"
)

type Tier string

const (
	TierImmediate Tier = "immediate"
	TierAudited   Tier = "audited"
	TierOPME      Tier = "opme"
)

// SLADays is the number of business days the authorization may take.
func (t Tier) SLADays() int {
	switch t {
	case TierAudited:
		return 5
	case TierOPME:
		return 10
	default:
		return 0
	}
}

// Label is the Portuguese name shown to patients.
func (t Tier) Label() string {
	switch t {
	case TierImmediate:
		return "Liberação imediata"
	case TierAudited:
		return "Auditoria médica"
	case TierOPME:
		return "OPME (órteses, próteses e materiais especiais)"
	default:
		return string(t)
	}
}

type Entry struct {
	Name string `json:"name"`
	Tier Tier   `json:"tier"`
}

// DefaultCatalog is ordered: Immediate entries come first so they are never
// shadowed by a longer Audited or OPME name, and a longer name precedes any
// shorter name it contains.
var DefaultCatalog = []Entry{
	{"consulta", TierImmediate},
	{"retorno", TierImmediate},
	{"hemograma", TierImmediate},
	{"glicemia", TierImmediate},
	{"colesterol", TierImmediate},
	{"exame de urina", TierImmediate},
	{"urina tipo 1", TierImmediate},
	{"raio-x", TierImmediate},
	{"raio x", TierImmediate},
	{"radiografia", TierImmediate},
	{"eletrocardiograma", TierImmediate},
	{"ultrassonografia", TierImmediate},
	{"ultrassom", TierImmediate},
	{"papanicolau", TierImmediate},
	{"mamografia", TierImmediate},
	{"vacina", TierImmediate},

	{"ressonância magnética", TierAudited},
	{"ressonância", TierAudited},
	{"tomografia", TierAudited},
	{"endoscopia", TierAudited},
	{"colonoscopia", TierAudited},
	{"ecocardiograma", TierAudited},
	{"polissonografia", TierAudited},
	{"cateterismo", TierAudited},
	{"fisioterapia", TierAudited},
	{"quimioterapia", TierAudited},
	{"radioterapia", TierAudited},
	{"hemodiálise", TierAudited},
	{"cirurgia bariátrica", TierAudited},

	{"angioplastia", TierOPME},
	{"stent", TierOPME},
	{"marcapasso", TierOPME},
	{"prótese", TierOPME},
	{"órtese", TierOPME},
	{"artroplastia", TierOPME},
	{"implante coclear", TierOPME},
	{"cirurgia de coluna", TierOPME},
}

// minFragment is the shortest input that may match as the truncated start of a
// catalog word ("angio" finds "angioplastia").
const minFragment = 4

type compiledEntry struct {
	Entry
	key string
}

func compile(entries []Entry) []compiledEntry {
	out := make([]compiledEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, compiledEntry{Entry: e, key: textmatch.Fold(e.Name)})
	}
	return out
}

// match returns the first entry whose name occurs in the input. Failing that,
// an input of at least minFragment runes that truncates a word of one or more
// entries matches the first of them, provided they all share a tier. Whole
// words such as "exame" or "cirurgia" never match on their own.
func match(catalog []compiledEntry, name string) (Entry, bool) {
	input := textmatch.Fold(name)
	if input == "" {
		return Entry{}, false
	}
	for _, e := range catalog {
		if strings.Contains(input, e.key) {
			return e.Entry, true
		}
	}

	if utf8.RuneCountInString(input) < minFragment {
		return Entry{}, false
	}
	var found *compiledEntry
	for i := range catalog {
		e := &catalog[i]
		if !truncatesWord(e.key, input) {
			continue
		}
		if found == nil {
			found = e
		} else if found.Tier != e.Tier {
			return Entry{}, false
		}
	}
	if found == nil {
		return Entry{}, false
	}
	return found.Entry, true
}

// truncatesWord reports whether frag occurs in key starting at a word boundary
// and ending inside a word.
func truncatesWord(key, frag string) bool {
	for off := 0; off < len(key); {
		i := strings.Index(key[off:], frag)
		if i < 0 {
			return false
		}
		i += off
		end := i + len(frag)
		if atWordStart(key, i) && end < len(key) && isWordRune(key[end:]) {
			return true
		}
		_, size := utf8.DecodeRuneInString(key[i:])
		off = i + size
	}
	return false
}

func atWordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isWordRune(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// AddBusinessDays moves t forward by n weekdays, skipping Saturday and Sunday.
func AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
