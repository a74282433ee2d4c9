package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog must not be empty")
	}
	if !c.Contains("iron_ingot") {
		t.Fatal("default catalog missing iron_ingot")
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if c.Len() != Default().Len() {
		t.Fatalf("expected default catalog, got %d items", c.Len())
	}
}

func TestLoadEmptyPathFallsBack(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("empty path should fall back to defaults: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("expected default items")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
similarity_threshold = 0.5
items = ["Iron_Ingot", "iron_ingot", "  gold_ingot  ", ""]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Normalized to lower case, blank and duplicate entries dropped.
	if c.Len() != 2 {
		t.Fatalf("expected 2 items, got %v", c.Items())
	}
	if !c.Contains("iron_ingot") || !c.Contains("gold_ingot") {
		t.Fatalf("unexpected items: %v", c.Items())
	}
}

func TestLoadRejectsEmptyItemList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte("items = []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for catalog file with no items")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte("items = [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCatalogSearch(t *testing.T) {
	c := Default()
	results := c.Search("iron_b", 10)
	if len(results) == 0 || results[0] != "iron_block" {
		t.Fatalf("Search(iron_b) = %v, want iron_block first", results)
	}
	if got := c.Search("", 10); got != nil {
		t.Fatalf("empty query should return nothing, got %v", got)
	}
}
