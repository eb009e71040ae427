package jassist

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Content labels a transcription job can carry.
const (
	LabelDiary     = "diary"
	LabelCalendar  = "calendar"
	LabelMeeting   = "meeting"
	LabelNote      = "note"
	LabelTodo      = "todo"
	LabelOther     = "other"
	LabelUnlabeled = "unlabeled"
)

var validLabels = map[string]bool{
	LabelDiary:     true,
	LabelCalendar:  true,
	LabelMeeting:   true,
	LabelNote:      true,
	LabelTodo:      true,
	LabelOther:     true,
	LabelUnlabeled: true,
}

// IsValidLabel reports whether label belongs to the closed label set.
func IsValidLabel(label string) bool {
	return validLabels[label]
}

// categorySynonyms map assistant categories (English and Portuguese) onto labels.
var categorySynonyms = map[string]string{
	"diario":      LabelDiary,
	"journal":     LabelDiary,
	"agenda":      LabelCalendar,
	"appointment": LabelCalendar,
	"calendario":  LabelCalendar,
	"reuniao":     LabelMeeting,
	"tarefas":     LabelTodo,
	"task":        LabelTodo,
	"tasks":       LabelTodo,
	"notes":       LabelNote,
	"nota":        LabelNote,
	"notas":       LabelNote,
	"contas":      LabelOther,
	"contactos":   LabelOther,
	"entidades":   LabelOther,
	"contacts":    LabelOther,
	"accounts":    LabelOther,
}

// categoryKeywords is searched in order; the first label with a hit wins.
var categoryKeywords = []struct {
	label    string
	keywords []string
}{
	{LabelDiary, []string{"diary", "journal", "diario"}},
	{LabelCalendar, []string{"calendar", "agenda", "appointment", "schedule"}},
	{LabelMeeting, []string{"meeting", "reunion", "conference"}},
	{LabelNote, []string{"note", "notes", "reminder"}},
	{LabelTodo, []string{"todo", "task", "tasks", "to-do", "to do", "tarefas"}},
	{LabelOther, []string{"other", "contact", "account", "miscellaneous"}},
}

// NormalizeCategory lowercases, strips accents and applies the synonym table.
// ok is false when the result is not a valid label. "unlabeled" is not accepted
// from the assistant.
func NormalizeCategory(category string) (string, bool) {
	c := foldAccents(strings.ToLower(strings.TrimSpace(category)))
	if mapped, found := categorySynonyms[c]; found {
		c = mapped
	}
	if c == LabelUnlabeled || !IsValidLabel(c) {
		return "", false
	}
	return c, true
}

type classificationEntry struct {
	Text     string `mapstructure:"text"`
	Category string `mapstructure:"category"`
}

type classificationPayload struct {
	Classifications []classificationEntry `mapstructure:"classifications"`
	Category        *string               `mapstructure:"category"`
}

// ParseLabel turns an assistant answer into a label.
// JSON answers are read from a "classifications" list (first valid entry wins,
// none valid means unlabeled) or a top-level "category". Anything else falls
// back to keyword search over the text.
func ParseLabel(answer string) string {
	payload, ok := decodeClassification(answer)
	if !ok {
		return KeywordLabel(answer)
	}

	if len(payload.Classifications) > 0 {
		for _, entry := range payload.Classifications {
			if label, ok := NormalizeCategory(entry.Category); ok {
				return label
			}
		}
		return LabelUnlabeled
	}

	if payload.Category != nil {
		if label, ok := NormalizeCategory(*payload.Category); ok {
			return label
		}
		return LabelUnlabeled
	}

	return KeywordLabel(answer)
}

func decodeClassification(answer string) (*classificationPayload, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &raw); err != nil {
		return nil, false
	}

	var payload classificationPayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false
	}
	return &payload, true
}

// KeywordLabel searches text for the category keywords, defaulting to unlabeled.
func KeywordLabel(text string) string {
	lower := foldAccents(strings.ToLower(text))
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.label
			}
		}
	}
	return LabelUnlabeled
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
