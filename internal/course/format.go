package course

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = []language.Tag{language.English, language.Korean}

var matcher = language.NewMatcher(supported)

func init() {
	for key, ko := range map[string]string{
		"Beginner":     "초급",
		"Intermediate": "중급",
		"Advanced":     "고급",
	} {
		_ = message.SetString(language.Korean, key, ko)
	}
}

// PrinterFor picks the display language from an Accept-Language header.
func PrinterFor(acceptLanguage string) *message.Printer {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return message.NewPrinter(language.English)
	}
	_, idx, _ := matcher.Match(tags...)
	return message.NewPrinter(supported[idx])
}

func levelLabel(p *message.Printer, l Level) string {
	switch l {
	case LevelBeginner:
		return p.Sprintf("Beginner")
	case LevelIntermediate:
		return p.Sprintf("Intermediate")
	case LevelAdvanced:
		return p.Sprintf("Advanced")
	default:
		return string(l)
	}
}

func kmLabel(p *message.Printer, km float64) string {
	return p.Sprintf("%.1f km", km)
}

func metersLabel(p *message.Printer, m float64) string {
	return p.Sprintf("%.0f m", m)
}

func minutesLabel(p *message.Printer, min float64) string {
	return p.Sprintf("%.0f min", min)
}

func listing(p *message.Printer, c Course) Listing {
	return Listing{
		Course:                c,
		LevelLabel:            levelLabel(p, c.Level),
		DistanceLabel:         kmLabel(p, c.Distance),
		AltitudeLabel:         metersLabel(p, c.Altitude),
		DistanceFromUserLabel: kmLabel(p, c.DistanceFromUser),
	}
}
