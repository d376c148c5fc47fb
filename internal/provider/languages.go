package provider

import "strings"

// supportedLangs is the intersection of target languages both providers
// handle. Codes are ISO 639-1, lowercase.
var supportedLangs = map[string]struct{}{
	"en": {}, "es": {}, "fr": {}, "de": {}, "it": {}, "pt": {}, "ru": {},
	"ja": {}, "ko": {}, "zh": {}, "ar": {}, "nl": {}, "pl": {}, "tr": {},
	"sv": {}, "da": {}, "no": {}, "fi": {}, "el": {}, "he": {}, "th": {},
	"vi": {}, "id": {}, "ms": {}, "cs": {}, "hu": {}, "ro": {}, "uk": {},
	"bg": {}, "ca": {}, "hi": {}, "fa": {},
}

// Supported reports whether code is a translatable target language.
// Matching is case-insensitive; region subtags are not accepted.
func Supported(code string) bool {
	_, ok := supportedLangs[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// SupportedLanguages returns the supported target codes (unordered).
func SupportedLanguages() []string {
	out := make([]string, 0, len(supportedLangs))
	for c := range supportedLangs {
		out = append(out, c)
	}
	return out
}
