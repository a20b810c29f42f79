package extract

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clientKeyCase struct {
	pattern string
	html    string
	want    string
}

func TestExtractClientKeyPatterns(t *testing.T) {
	tests := []clientKeyCase{
		{"meta", `<head><meta name="_gg_fb" content="Mf7qK2"></head>`, "Mf7qK2"},
		{"comment", `<body><!-- _is_th:c0mm3ntKey --></body>`, "c0mm3ntKey"},
		{"lk_db", `<script>window._lk_db = {x: "kq1", y: "Zr2", z: "w3A"};</script>`, "kq1Zr2w3A"},
		{"data-dpi", `<div data-dpi="dpi8Key" class="player"></div>`, "dpi8Key"},
		{"nonce", `<script nonce="n0nceK">var a = 1;</script>`, "n0nceK"},
		{"xy_ws", "<script>window._xy_ws = `wsB71`;</script>", "wsB71"},
	}

	// every pattern the extractor knows has a case here
	covered := lo.Map(tests, func(tt clientKeyCase, _ int) string { return tt.pattern })
	names := lo.Map(keyPatterns, func(p keyPattern, _ int) string { return p.name })
	assert.ElementsMatch(t, names, covered)

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := extractClientKey("<html>" + tt.html + "</html>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractClientKeyFirstPatternWins(t *testing.T) {
	html := `<script nonce="fromNonce"></script><meta name="_gg_fb" content="fromMeta">`
	got, err := extractClientKey(html)
	require.NoError(t, err)
	assert.Equal(t, "fromMeta", got)
}

func TestExtractClientKeyMatchedWithoutKey(t *testing.T) {
	// single quotes satisfy the lk_db block but not its x/y/z parts
	html := `<script>window._lk_db = {x: 'kq1', y: 'Zr2', z: 'w3A'};</script>`
	_, err := extractClientKey(html)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"lk_db" matched but held no key`)
}

func TestExtractClientKeyNoMatch(t *testing.T) {
	_, err := extractClientKey(`<html><body><p>episode unavailable</p></body></html>`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no client key pattern matched")
}
