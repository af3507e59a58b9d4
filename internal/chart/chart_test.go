package chart

import (
	"bytes"
	"errors"
	"testing"

	"kakeibo/internal/core"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestPie(t *testing.T) {
	r := NewRenderer()
	img, err := r.Pie("2025-03", []core.PieSlice{
		{Name: "食費", Color: "#f4a261", Amount: core.FromUnits(1200)},
		{Name: "交通費", Color: "#2a9d8f", Amount: core.FromUnits(800)},
		{Name: core.UncategorizedName, Amount: core.Money{}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(img, pngMagic) {
		t.Fatal("expected a PNG image")
	}
}

func TestPieWithoutData(t *testing.T) {
	_, err := NewRenderer().Pie("", nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestBudgets(t *testing.T) {
	r := NewRenderer()
	img, err := r.Budgets("2025-03", []core.BudgetStatus{
		{CategoryName: "食費", Color: "#f4a261", HasBudget: true, UsagePercentage: 120, UsagePercentageForGraph: 100, IsOverBudget: true},
		{CategoryName: "交通費", Color: "#2a9d8f", HasBudget: true, UsagePercentage: 40, UsagePercentageForGraph: 40},
		{CategoryName: "日用品"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(img, pngMagic) {
		t.Fatal("expected a PNG image")
	}

	if _, err := r.Budgets("", []core.BudgetStatus{{CategoryName: "日用品"}}); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestColor(t *testing.T) {
	if got := color("#ABC"); got != color("aabbcc") {
		t.Fatalf("shorthand color mismatch: %v", got)
	}
	if got := color(""); got != color(core.UncategorizedColor) {
		t.Fatalf("empty color should fall back, got %v", got)
	}
}
