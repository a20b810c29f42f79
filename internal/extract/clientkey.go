package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// keyPattern locates one of the rotating hiding places of the client key
// and pulls the key out of the matched fragment.
type keyPattern struct {
	name  string
	match *regexp.Regexp
	take  func(fragment string) string
}

var (
	quotedValue = regexp.MustCompile(`"[a-zA-Z0-9]+"`)
	commentKey  = regexp.MustCompile(`:([a-zA-Z0-9]+)\s`)
	anyQuoted   = regexp.MustCompile(`['"\x60]([0-9a-zA-Z]+)['"\x60]`)
	lkDbParts   = []*regexp.Regexp{
		regexp.MustCompile(`x:\s+"([a-zA-Z0-9]+)"`),
		regexp.MustCompile(`y:\s+"([a-zA-Z0-9]+)"`),
		regexp.MustCompile(`z:\s+"([a-zA-Z0-9]+)"`),
	}
)

func takeQuoted(fragment string) string {
	return strings.Trim(quotedValue.FindString(fragment), `"`)
}

// keyPatterns are tried in order; the embed page uses exactly one per response.
var keyPatterns = []keyPattern{
	{"meta", regexp.MustCompile(`<meta name="_gg_fb" content="[a-zA-Z0-9]+">`), takeQuoted},
	{"comment", regexp.MustCompile(`<!--\s+_is_th:[0-9a-zA-Z]+\s+-->`), func(f string) string {
		if m := commentKey.FindStringSubmatch(f); m != nil {
			return m[1]
		}
		return ""
	}},
	{"lk_db", regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["']\};</script>`), func(f string) string {
		var b strings.Builder
		for _, part := range lkDbParts {
			m := part.FindStringSubmatch(f)
			if m == nil {
				return ""
			}
			b.WriteString(m[1])
		}
		return b.String()
	}},
	{"data-dpi", regexp.MustCompile(`<div\s+data-dpi="[0-9a-zA-Z]+"\s+[^>]*></div>`), takeQuoted},
	{"nonce", regexp.MustCompile(`<script nonce="[0-9a-zA-Z]+">`), takeQuoted},
	{"xy_ws", regexp.MustCompile(`<script>window\._xy_ws = ['"\x60][0-9a-zA-Z]+['"\x60];</script>`), func(f string) string {
		if m := anyQuoted.FindStringSubmatch(f); m != nil {
			return m[1]
		}
		return ""
	}},
}

// extractClientKey finds the obfuscated client key in an embed page.
func extractClientKey(html string) (string, error) {
	for _, p := range keyPatterns {
		fragment := p.match.FindString(html)
		if fragment == "" {
			continue
		}
		if key := p.take(fragment); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("client key pattern %q matched but held no key", p.name)
	}
	return "", fmt.Errorf("no client key pattern matched")
}
