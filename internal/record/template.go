package record

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed template.json
var defaultTemplate []byte

// Template is the skeleton of a Unified County Record that adapters fill in.
type Template struct {
	raw []byte
}

// DefaultTemplate returns the embedded template.
func DefaultTemplate() Template {
	return Template{raw: defaultTemplate}
}

// LoadTemplate reads a template from a JSON file.
func LoadTemplate(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	t := Template{raw: raw}
	if _, err := t.decode(); err != nil {
		return Template{}, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

func (t Template) decode() (County, error) {
	var out County
	decoder := json.NewDecoder(bytes.NewReader(t.raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&out); err != nil {
		return County{}, err
	}
	if out.Series.Cases == nil {
		out.Series.Cases = []CaseEntry{}
	}
	if out.Series.Deaths == nil {
		out.Series.Deaths = []DeathEntry{}
	}
	if out.Series.Tests == nil {
		out.Series.Tests = []TestEntry{}
	}
	return out, nil
}

// New returns a fresh record. Records returned by separate calls share no state.
func (t Template) New() County {
	out, err := t.decode()
	if err != nil {
		// LoadTemplate and the embedded file are both validated
		panic(fmt.Sprintf("invalid record template: %v", err))
	}
	return out
}
