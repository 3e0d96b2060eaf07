package coa

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template is a named starting chart.
type Template struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Accounts    []TemplateAccount `yaml:"accounts"`
}

// TemplateAccount declares its parent by code, like an import row.
type TemplateAccount struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Parent      string `yaml:"parent"`
	Subtype     string `yaml:"subtype"`
	Description string `yaml:"description"`
	FSLIBucket  string `yaml:"fsli_bucket"`
	Item        string `yaml:"item"`
}

// TemplateNames lists the embedded templates.
func TemplateNames() []string {
	entries, _ := templateFS.ReadDir("templates")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadTemplate reads an embedded template by name.
func LoadTemplate(name string) (Template, error) {
	raw, err := templateFS.ReadFile("templates/" + path.Base(name) + ".yaml")
	if err != nil {
		return Template{}, fmt.Errorf("%w: %s", shared.ErrUnknownTemplate, name)
	}
	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return Template{}, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tpl, nil
}

// RowSet turns the template into import rows; lines count from 2 as in a file.
func (t Template) RowSet() RowSet {
	set := RowSet{Columns: map[Column]bool{
		ColumnCode: true, ColumnName: true, ColumnType: true, ColumnParentCode: true,
		ColumnSubtype: true, ColumnDescription: true, ColumnFSLIBucket: true, ColumnItem: true,
	}}
	for i, a := range t.Accounts {
		set.Rows = append(set.Rows, Row{
			Line:        i + 2,
			Code:        a.Code,
			Name:        a.Name,
			Type:        a.Type,
			ParentCode:  a.Parent,
			Subtype:     a.Subtype,
			Description: a.Description,
			FSLIBucket:  a.FSLIBucket,
			Item:        a.Item,
		})
	}
	return set
}
