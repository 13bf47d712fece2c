package hammerdb

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cespare/xxhash"
)

// Dialect selects the hammerdbcli scripting front end.
type Dialect string

const (
	DialectTcl    Dialect = "tcl"
	DialectPython Dialect = "python"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case DialectTcl, "":
		return DialectTcl, nil
	case DialectPython, "py":
		return DialectPython, nil
	default:
		return "", fmt.Errorf("unsupported script dialect: %s", s)
	}
}

// Script is a rendered hammerdbcli script.
type Script struct {
	Dialect Dialect
	Body    []byte
}

// Fingerprint identifies the script contents across runs.
func (s *Script) Fingerprint() string {
	return fmt.Sprintf("%016x", xxhash.Sum64(s.Body))
}

const tclTemplate = `# generated by pg-tprocc-buildschema
# categories: {{ .Categories | uniq | join " " }}
{{- range .Options }}
{{ if .IsDBSet }}dbset {{ .Key }} {{ tclQuote .Value }}{{ else }}diset {{ .Category }} {{ .Key }} {{ tclQuote .Value }}{{ end }}
{{- end }}
buildschema
exit
`

const pythonTemplate = `# generated by pg-tprocc-buildschema
# categories: {{ .Categories | uniq | join " " }}
{{- range .Options }}
{{ if .IsDBSet }}dbset({{ pyQuote .Key }},{{ pyQuote .Value }}){{ else }}diset({{ pyQuote .Category }},{{ pyQuote .Key }},{{ pyQuote .Value }}){{ end }}
{{- end }}
buildschema()
exit()
`

var templates = map[Dialect]*template.Template{
	DialectTcl:    mustTemplate("tcl", tclTemplate),
	DialectPython: mustTemplate("python", pythonTemplate),
}

func mustTemplate(name, text string) *template.Template {
	funcs := sprig.TxtFuncMap()
	funcs["tclQuote"] = tclQuote
	funcs["pyQuote"] = pyQuote
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

// RenderScript renders the options into a script that applies them and
// builds the schema.
func RenderScript(dialect Dialect, set *OptionSet) (*Script, error) {
	tmpl, ok := templates[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported script dialect: %s", dialect)
	}
	options := set.Options()
	categories := make([]string, 0, len(options))
	for _, o := range options {
		categories = append(categories, o.Category)
	}
	data := struct {
		Options    []Option
		Categories []string
	}{options, categories}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s script: %w", dialect, err)
	}
	return &Script{Dialect: dialect, Body: buf.Bytes()}, nil
}

// tclQuote returns value as a single Tcl word with its contents preserved.
func tclQuote(value string) string {
	if !strings.ContainsAny(value, "{}\\") {
		return "{" + value + "}"
	}
	var sb strings.Builder
	for _, r := range value {
		switch r {
		case '\\', '{', '}', '[', ']', '$', '"', ';', ' ', '\t':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// pyQuote returns value as a single quoted python string literal.
func pyQuote(value string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range value {
		switch r {
		case '\\', '\'':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
