package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePack(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingDirIsFine(t *testing.T) {
	packs, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if packs != nil {
		t.Errorf("packs = %v, want nil", packs)
	}
}

func TestLoad_StripsByteOrderMark(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "bom.md", "\uFEFF---\nname: bom\n---\nBody.\n")

	packs, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(packs) != 1 || packs[0].Name != "bom" {
		t.Fatalf("packs = %+v, want the BOM-prefixed pack parsed", packs)
	}
}

func TestLoad_ParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "tone.md", "---\nname: tone\ndescription: keep it short\n---\nReply in one sentence.\n")

	packs, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("len = %d, want 1", len(packs))
	}
	p := packs[0]
	if p.Name != "tone" || p.Description != "keep it short" {
		t.Errorf("pack = %+v", p)
	}
	if p.Body != "Reply in one sentence." {
		t.Errorf("body = %q", p.Body)
	}
}

func TestLoad_SkipsInvalidAndSorts(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "b.md", "---\nname: beta\n---\nB body\n")
	writePack(t, dir, "a.md", "---\nname: alpha\n---\nA body\n")
	writePack(t, dir, "broken.md", "no frontmatter here")
	writePack(t, dir, "notes.txt", "---\nname: ignored\n---\n")

	packs, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("len = %d, want 2", len(packs))
	}
	if packs[0].Name != "alpha" || packs[1].Name != "beta" {
		t.Errorf("order = [%s %s], want filename order", packs[0].Name, packs[1].Name)
	}
}

func TestLoad_DuplicateNameIsError(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "a.md", "---\nname: same\n---\n")
	writePack(t, dir, "b.md", "---\nname: same\n---\n")

	if _, err := Load(dir); err == nil {
		t.Error("expected duplicate-name error")
	}
}

func TestMerge(t *testing.T) {
	out := Merge([]Pack{
		{Name: "tone", Body: "Be brief."},
		{Name: "focus", Body: "Tasks first."},
	})
	if !strings.Contains(out, "## tone\nBe brief.") || !strings.Contains(out, "## focus\nTasks first.") {
		t.Errorf("merged = %q", out)
	}
	if Merge(nil) != "" {
		t.Error("empty merge should be empty")
	}
}
