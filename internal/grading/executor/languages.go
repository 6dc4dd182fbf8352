package executor

import (
	"fmt"
	"strings"
)

// defaultLanguageIDs maps language names onto Judge0 CE language ids.
var defaultLanguageIDs = map[string]int{
	"c":          50,
	"cpp":        54,
	"c++":        54,
	"csharp":     51,
	"c#":         51,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"node":       63,
	"python":     71,
	"python3":    71,
	"ruby":       72,
	"rust":       73,
	"typescript": 74,
	"kotlin":     78,
}

// LanguageTable resolves language names to remote ids with a default fallback.
type LanguageTable struct {
	ids             map[string]int
	defaultLanguage string
	defaultID       int
}

// NewLanguageTable merges extra into the built-in table. defaultLanguage must resolve.
func NewLanguageTable(defaultLanguage string, extra map[string]int) (*LanguageTable, error) {
	ids := make(map[string]int, len(defaultLanguageIDs)+len(extra))
	for name, id := range defaultLanguageIDs {
		ids[name] = id
	}
	for name, id := range extra {
		ids[normalizeLanguage(name)] = id
	}
	def := normalizeLanguage(defaultLanguage)
	id, ok := ids[def]
	if !ok {
		return nil, fmt.Errorf("default language %q is not in the language table", defaultLanguage)
	}
	return &LanguageTable{ids: ids, defaultLanguage: def, defaultID: id}, nil
}

// Resolve returns the remote id for language and the table name it matched.
// Unknown names resolve to the default language and report fellBack=true, so
// name is always a key of the table.
func (t *LanguageTable) Resolve(language string) (id int, name string, fellBack bool) {
	name = normalizeLanguage(language)
	if id, ok := t.ids[name]; ok {
		return id, name, false
	}
	return t.defaultID, t.defaultLanguage, true
}

// DefaultLanguage returns the normalized fallback name.
func (t *LanguageTable) DefaultLanguage() string {
	return t.defaultLanguage
}

func normalizeLanguage(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
