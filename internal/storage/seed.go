package storage

import (
	"bufio"
	"os"
	"strings"

	"kakeibo/internal/core"
)

// LoadSeedCategories reads the categories given to a new user from a text
// file with one "name" or "name,#color" per line. Blank lines and lines
// starting with # are skipped, and duplicate names keep the first entry.
// A missing or empty file yields core.DefaultCategories.
func LoadSeedCategories(path string) []core.Category {
	if path == "" {
		return core.DefaultCategories()
	}
	f, err := os.Open(path)
	if err != nil {
		return core.DefaultCategories()
	}
	defer f.Close()

	var out []core.Category
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, color, _ := strings.Cut(line, ",")
		name = strings.TrimSpace(name)
		if _, ok := seen[name]; ok || (core.Category{Name: name}).Validate() != nil {
			continue
		}
		seen[name] = struct{}{}
		c := core.Category{Name: name, Color: core.NormalizeColor(color), SortOrder: len(out)}
		if c.Color == "" || c.Validate() != nil {
			c.Color = core.PaletteColor(len(out))
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return core.DefaultCategories()
	}
	return out
}
