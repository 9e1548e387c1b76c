package resolver

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// CountryName returns the English display name for an ISO 3166-1 alpha-2
// country code. Unknown or malformed codes are returned unchanged so the
// instance table always has something to show.
func CountryName(code string) string {
	if code == "" {
		return ""
	}

	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}

	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}
