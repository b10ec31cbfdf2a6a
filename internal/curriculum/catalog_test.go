package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/learnpath/internal/curriculum"
)

func TestDefaultCatalog(t *testing.T) {
	c := curriculum.DefaultCatalog()

	if got := c.Default(); got != "Grade 5" {
		t.Errorf("Default() = %q, want %q", got, "Grade 5")
	}
	if len(c.Levels()) != 6 {
		t.Errorf("Levels() len = %d, want 6", len(c.Levels()))
	}
	if !c.Contains("Grade 3") {
		t.Error("Contains(Grade 3) = false, want true")
	}
	if c.Contains("Grade 12") {
		t.Error("Contains(Grade 12) = true, want false")
	}
}

func TestCatalog_LevelsIsCopy(t *testing.T) {
	c := curriculum.DefaultCatalog()
	levels := c.Levels()
	levels[0] = "changed"

	if c.Levels()[0] != "Grade 3" {
		t.Error("mutating Levels() result changed the catalog")
	}
}

func TestNewCatalog(t *testing.T) {
	tests := []struct {
		name    string
		levels  []string
		def     string
		want    string
		wantErr bool
	}{
		{"explicit default", []string{"K", "Grade 1", "Grade 2"}, "K", "K", false},
		{"third level by default", []string{"K", "Grade 1", "Grade 2", "Grade 3"}, "", "Grade 2", false},
		{"short list uses last", []string{"Beginner", "Advanced"}, "", "Advanced", false},
		{"trims whitespace", []string{" A ", "B"}, " A", "A", false},
		{"empty", nil, "", "", true},
		{"blank level", []string{"A", "  "}, "", "", true},
		{"duplicate", []string{"A", "A"}, "", "", true},
		{"unknown default", []string{"A", "B"}, "C", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := curriculum.NewCatalog(tt.levels, tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.Default() != tt.want {
				t.Errorf("Default() = %q, want %q", c.Default(), tt.want)
			}
		})
	}
}

func TestLoadCatalog_EmptyPath(t *testing.T) {
	c, err := curriculum.LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.Default() != "Grade 5" {
		t.Errorf("Default() = %q, want built-in default", c.Default())
	}
}

func TestLoadCatalog_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "levels.yaml")
	writeFile(t, path, `
levels:
  - Kindergarten
  - Grade 1
  - Grade 2
default: Grade 1
`)

	c, err := curriculum.LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.Default() != "Grade 1" {
		t.Errorf("Default() = %q, want Grade 1", c.Default())
	}
	if len(c.Levels()) != 3 {
		t.Errorf("Levels() len = %d, want 3", len(c.Levels()))
	}
}

func TestLoadCatalog_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, curriculum.CatalogFileName), `
levels: [Form 1, Form 2, Form 3]
`)

	c, err := curriculum.LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.Default() != "Form 3" {
		t.Errorf("Default() = %q, want Form 3", c.Default())
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	writeFile(t, badYAML, "levels: [unterminated")

	badDefault := filepath.Join(dir, "default.yaml")
	writeFile(t, badDefault, "levels: [A, B]\ndefault: Z\n")

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), badYAML, badDefault} {
		if _, err := curriculum.LoadCatalog(path); err == nil {
			t.Errorf("LoadCatalog(%s) should fail", filepath.Base(path))
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
