package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template names.
const (
	tmplAttendance = "attendance"
	tmplSummary    = "summary"
	tmplLate       = "late"
	tmplAbsence    = "absence"
)

type messageTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Templates renders email subjects and bodies.
type Templates struct {
	byName map[string]compiled
}

// LoadTemplates parses the embedded templates.
func LoadTemplates() (*Templates, error) {
	return ParseTemplates(templatesYAML)
}

// ParseTemplates parses templates from YAML.
func ParseTemplates(data []byte) (*Templates, error) {
	var raw map[string]messageTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	t := &Templates{byName: make(map[string]compiled, len(raw))}
	for name, mt := range raw {
		subject, err := template.New(name + ".subject").Parse(mt.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Parse(mt.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		t.byName[name] = compiled{subject: subject, body: body}
	}
	return t, nil
}

// Render returns the subject and body of the named template.
func (t *Templates) Render(name string, data any) (string, string, error) {
	c, ok := t.byName[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	var subject, body strings.Builder
	if err := c.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
