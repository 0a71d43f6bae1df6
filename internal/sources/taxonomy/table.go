package taxonomy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// DefaultBaseConfidence applies to entries that do not declare their own.
const DefaultBaseConfidence = 0.6

// Entry is one code of a taxonomy table.
type Entry struct {
	Code     string   `yaml:"code" json:"code"`
	Label    string   `yaml:"label" json:"label"`
	System   string   `yaml:"system,omitempty" json:"system,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	// Type restricts the entry to one item type. Empty matches both.
	Type       model.ItemType `yaml:"type,omitempty" json:"type,omitempty"`
	Confidence float64        `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// Table is a code table such as ATECO, CPV or UNSPSC.
type Table struct {
	System  string  `yaml:"system" json:"system"`
	Entries []Entry `yaml:"entries" json:"entries"`
}

// normalize fills entry defaults and drops entries with no code, label or
// keyword.
func (t *Table) normalize() {
	kept := t.Entries[:0]
	for _, e := range t.Entries {
		e.Code = strings.TrimSpace(e.Code)
		e.Label = strings.TrimSpace(e.Label)
		if e.System == "" {
			e.System = t.System
		}
		if e.Confidence <= 0 || e.Confidence > 1 {
			e.Confidence = DefaultBaseConfidence
		}
		kws := e.Keywords[:0]
		for _, kw := range e.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		e.Keywords = kws
		if e.Code == "" || e.Label == "" || len(e.Keywords) == 0 {
			continue
		}
		kept = append(kept, e)
	}
	t.Entries = kept
}

// LoadTable reads a table from a .yaml, .yml, .json or .xlsx file.
func LoadTable(path string) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		t, err = decodeFile(path, yaml.Unmarshal)
	case ".json":
		t, err = decodeFile(path, json.Unmarshal)
	case ".xlsx":
		t, err = readXLSX(path)
	default:
		return nil, eris.Errorf("taxonomy: unsupported table format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	t.normalize()
	if len(t.Entries) == 0 {
		return nil, eris.Errorf("taxonomy: table %s has no usable entries", path)
	}
	return t, nil
}

func decodeFile(path string, unmarshal func([]byte, any) error) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	var t Table
	if err := unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "taxonomy: parse %s", path)
	}
	return &t, nil
}

// readXLSX reads the first sheet. The header row names the columns code,
// label, keywords and optionally system, type and confidence. Keywords are
// separated by ';' or ','.
func readXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("taxonomy: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("taxonomy: sheet %q is empty", sheet.Name)
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		cols[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, required := range []string{"code", "label", "keywords"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("taxonomy: sheet %q lacks a %q column", sheet.Name, required)
		}
	}

	t := &Table{System: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for _, row := range sheet.Rows[1:] {
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[i].String())
		}
		e := Entry{
			Code:     get("code"),
			Label:    get("label"),
			System:   get("system"),
			Type:     model.ItemType(strings.ToLower(get("type"))),
			Keywords: splitKeywords(get("keywords")),
		}
		if c := get("confidence"); c != "" {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "taxonomy: bad confidence %q for code %s", c, e.Code)
			}
			e.Confidence = v
		}
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}

func splitKeywords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
}
