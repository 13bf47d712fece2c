package hammerdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOptions(t *testing.T) *OptionSet {
	t.Helper()
	s := NewOptionSet()
	require.NoError(t, s.Set(CategoryDB, "db", "pg"))
	require.NoError(t, s.Set(CategoryBenchmark, "bm", "TPC-C"))
	require.NoError(t, s.Set(CategoryConnection, "pg_host", "DB_SERVER_IP"))
	require.NoError(t, s.Set(CategoryTPCC, "pg_defaultdbase", " postgres"))
	require.NoError(t, s.Set(CategoryTPCC, "pg_partition", "true"))
	return s
}

func TestRenderScriptTcl(t *testing.T) {
	script, err := RenderScript(DialectTcl, sampleOptions(t))
	require.NoError(t, err)

	want := `# generated by pg-tprocc-buildschema
# categories: db bm connection tpcc
dbset db {pg}
dbset bm {TPC-C}
diset connection pg_host {DB_SERVER_IP}
diset tpcc pg_defaultdbase { postgres}
diset tpcc pg_partition {true}
buildschema
exit
`
	assert.Equal(t, want, string(script.Body))
	assert.Equal(t, DialectTcl, script.Dialect)
}

func TestRenderScriptPython(t *testing.T) {
	script, err := RenderScript(DialectPython, sampleOptions(t))
	require.NoError(t, err)

	want := `# generated by pg-tprocc-buildschema
# categories: db bm connection tpcc
dbset('db','pg')
dbset('bm','TPC-C')
diset('connection','pg_host','DB_SERVER_IP')
diset('tpcc','pg_defaultdbase',' postgres')
diset('tpcc','pg_partition','true')
buildschema()
exit()
`
	assert.Equal(t, want, string(script.Body))
}

func TestRenderScriptUnknownDialect(t *testing.T) {
	_, err := RenderScript(Dialect("perl"), NewOptionSet())
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a, err := RenderScript(DialectTcl, sampleOptions(t))
	require.NoError(t, err)
	b, err := RenderScript(DialectTcl, sampleOptions(t))
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	s := sampleOptions(t)
	require.NoError(t, s.Set(CategoryTPCC, "pg_partition", "false"))
	c, err := RenderScript(DialectTcl, s)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name  string
		value string
		tcl   string
		py    string
	}{
		{name: "plain", value: "tpcc", tcl: "{tpcc}", py: "'tpcc'"},
		{name: "leading space", value: " postgres", tcl: "{ postgres}", py: "' postgres'"},
		{name: "empty", value: "", tcl: "{}", py: "''"},
		{name: "dollar", value: "pa$s", tcl: "{pa$s}", py: "'pa$s'"},
		{name: "brace", value: "a{b", tcl: `a\{b`, py: "'a{b'"},
		{name: "backslash and space", value: `a\ b`, tcl: `a\\\ b`, py: `'a\\ b'`},
		{name: "quote", value: "it's", tcl: "{it's}", py: `'it\'s'`},
		{name: "carriage return", value: "a\r\nb", tcl: "{a\r\nb}", py: `'a\r\nb'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tcl, tclQuote(tt.value))
			assert.Equal(t, tt.py, pyQuote(tt.value))
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectTcl, d)

	d, err = ParseDialect("PY")
	require.NoError(t, err)
	assert.Equal(t, DialectPython, d)

	_, err = ParseDialect("ruby")
	assert.Error(t, err)
}
