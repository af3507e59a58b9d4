package core

// UncategorizedName labels expenses whose category does not resolve.
const UncategorizedName = "未分類"

// UncategorizedColor is used when a pie or calendar entry has no category at all.
const UncategorizedColor = "#999999"

// Palette provides fallback colors, picked by position.
var Palette = []string{
	"#f4a261", "#e76f51", "#2a9d8f", "#e9c46a",
	"#8ab17d", "#6d597a", "#b56576", "#457b9d",
	"#a8dadc", "#ffb4a2", "#84a59d", "#f28482",
}

// PaletteColor returns the fallback color for position i.
func PaletteColor(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

// DefaultCategories are seeded for a user that has none.
func DefaultCategories() []Category {
	return []Category{
		{Name: "食費", Color: "#f4a261", SortOrder: 0},
		{Name: "交通費", Color: "#2a9d8f", SortOrder: 1},
		{Name: "日用品", Color: "#e9c46a", SortOrder: 2},
	}
}
