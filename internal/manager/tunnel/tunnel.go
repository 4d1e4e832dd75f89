// Package tunnel scans a manager's working directory for WireGuard
// configuration files and selects candidates for a given country (C6 step
// 3 and step 4.a).
package tunnel

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiwix/mirrors-qa/internal/isocountry"
)

// Config is one discovered `*.conf` file and the country code its filename
// declares.
type Config struct {
	Path        string
	CountryCode string
}

// Scan walks dir for `*.conf` files of the form `{cc}-*.conf` or `{cc}.conf`,
// keeping only those whose country code is a valid ISO 3166-1 alpha-2 code.
func Scan(dir string) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan tunnel config dir: %w", err)
	}

	var out []Config
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		code := countryCodeFromFilename(e.Name())
		if code == "" || !isocountry.Valid(code) {
			continue
		}
		out = append(out, Config{Path: filepath.Join(dir, e.Name()), CountryCode: code})
	}
	return out, nil
}

// countryCodeFromFilename extracts the leading 2-letter code from
// "{cc}-*.conf" or "{cc}.conf".
func countryCodeFromFilename(name string) string {
	base := strings.TrimSuffix(name, ".conf")
	if idx := strings.Index(base, "-"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.ToLower(base)
	if len(base) != 2 {
		return ""
	}
	return base
}

// CountryCodes returns the distinct set of valid country codes a set of
// Configs declares, used to announce vantage points via
// PUT /workers/{id}/countries.
func CountryCodes(configs []Config) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range configs {
		if _, ok := seen[c.CountryCode]; ok {
			continue
		}
		seen[c.CountryCode] = struct{}{}
		out = append(out, c.CountryCode)
	}
	return out
}

// ForCountry returns every Config whose country code matches cc, shuffled so
// repeated sessions probe different endpoints within the same country.
func ForCountry(configs []Config, cc string) []Config {
	var matches []Config
	for _, c := range configs {
		if c.CountryCode == cc {
			matches = append(matches, c)
		}
	}
	rand.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	return matches
}
