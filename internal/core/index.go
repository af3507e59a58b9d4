package core

// CategoryIndex resolves category references to their display name and color.
// When two categories share a name the first in declared order wins.
type CategoryIndex struct {
	ordered []Category
	byID    map[string]int
	byName  map[string]int
}

func NewCategoryIndex(categories []Category) CategoryIndex {
	ordered := SortCategories(categories)
	idx := CategoryIndex{
		ordered: ordered,
		byID:    make(map[string]int, len(ordered)),
		byName:  make(map[string]int, len(ordered)),
	}
	for i, c := range ordered {
		if _, ok := idx.byID[c.ID]; !ok {
			idx.byID[c.ID] = i
		}
		if _, ok := idx.byName[c.Name]; !ok {
			idx.byName[c.Name] = i
		}
	}
	return idx
}

func (x CategoryIndex) Lookup(id string) (Category, bool) {
	if id == "" {
		return Category{}, false
	}
	i, ok := x.byID[id]
	if !ok {
		return Category{}, false
	}
	return x.ordered[i], true
}

func (x CategoryIndex) ByName(name string) (Category, bool) {
	i, ok := x.byName[name]
	if !ok {
		return Category{}, false
	}
	return x.ordered[i], true
}

// Position returns the declared position of a category.
func (x CategoryIndex) Position(id string) (int, bool) {
	i, ok := x.byID[id]
	return i, ok
}

// Categories returns the categories in declared order.
func (x CategoryIndex) Categories() []Category {
	out := make([]Category, len(x.ordered))
	copy(out, x.ordered)
	return out
}

func (x CategoryIndex) Len() int { return len(x.ordered) }

// NameOf returns the display name for a reference, or the uncategorized label.
func (x CategoryIndex) NameOf(id string) string {
	if c, ok := x.Lookup(id); ok {
		return c.Name
	}
	return UncategorizedName
}
