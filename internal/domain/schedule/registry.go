package schedule

import "strings"

const (
	DefaultTimeHorizon = "24h"
	DefaultDepth       = "standard"
)

var countryRegistry = map[string]string{
	"al": "Albania", "ad": "Andorra", "at": "Austria", "by": "Belarus", "be": "Belgium",
	"ba": "Bosnia and Herzegovina", "bg": "Bulgaria", "hr": "Croatia", "cy": "Cyprus",
	"cz": "Czech Republic", "dk": "Denmark", "ee": "Estonia", "fi": "Finland", "fr": "France",
	"de": "Germany", "gr": "Greece", "hu": "Hungary", "is": "Iceland", "ie": "Ireland",
	"it": "Italy", "xk": "Kosovo", "lv": "Latvia", "li": "Liechtenstein", "lt": "Lithuania",
	"lu": "Luxembourg", "mt": "Malta", "md": "Moldova", "mc": "Monaco", "me": "Montenegro",
	"nl": "Netherlands", "mk": "North Macedonia", "no": "Norway", "pl": "Poland", "pt": "Portugal",
	"ro": "Romania", "ru": "Russia", "sm": "San Marino", "rs": "Serbia", "sk": "Slovakia",
	"si": "Slovenia", "es": "Spain", "se": "Sweden", "ch": "Switzerland", "tr": "Turkey",
	"ua": "Ukraine", "uk": "United Kingdom", "gb": "United Kingdom",
}

var supportedLanguages = map[string]struct{}{
	"en": {}, "pt": {}, "es": {}, "fr": {}, "de": {}, "it": {}, "ru": {}, "pl": {}, "uk": {},
}

// NormalizeCountry lowercases a country code and maps gb to uk.
func NormalizeCountry(code string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if _, ok := countryRegistry[c]; !ok {
		return "", false
	}
	if c == "gb" {
		return "uk", true
	}
	return c, true
}

// CountryName returns the display name for a normalized code, or the code itself.
func CountryName(code string) string {
	if name, ok := countryRegistry[code]; ok {
		return name
	}
	return code
}

func ValidLanguage(lang string) bool {
	_, ok := supportedLanguages[strings.ToLower(strings.TrimSpace(lang))]
	return ok
}

func ValidDepth(depth string) bool {
	switch depth {
	case "fast", "standard", "extended":
		return true
	}
	return false
}

func ValidTimeHorizon(horizon string) bool {
	switch horizon {
	case "24h", "3d", "7d":
		return true
	}
	return false
}
