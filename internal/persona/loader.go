// Package persona loads markdown instruction packs that shape the
// assistant's voice. Each pack is a .md file with YAML frontmatter.
package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var errInvalidFrontmatter = errors.New("invalid persona frontmatter")

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Pack struct {
	Name        string
	Description string
	Body        string
}

// Load reads every .md pack in dir, sorted by filename. A missing dir is
// not an error; malformed packs are skipped with a warning.
func Load(dir string) ([]Pack, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read persona dir %q: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var packs []Pack
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read persona %q: %w", path, err)
		}

		meta, body, err := parseFrontmatter(content)
		if err != nil {
			log.Printf("[persona] warning: skip invalid pack %s: %v", path, err)
			continue
		}
		name := strings.TrimSpace(meta.Name)
		if name == "" {
			log.Printf("[persona] warning: skip pack %s: missing name", path)
			continue
		}
		if prev, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate persona name %q in %s (already in %s)", name, path, prev)
		}
		seen[name] = path

		packs = append(packs, Pack{
			Name:        name,
			Description: strings.TrimSpace(meta.Description),
			Body:        strings.TrimSpace(body),
		})
	}
	return packs, nil
}

// Merge joins the packs into one system-prompt section.
func Merge(packs []Pack) string {
	if len(packs) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range packs {
		sb.WriteString("## " + p.Name + "\n")
		if p.Body != "" {
			sb.WriteString(p.Body + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func parseFrontmatter(content []byte) (frontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return frontmatter{}, "", fmt.Errorf("%w: missing opening delimiter", errInvalidFrontmatter)
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return frontmatter{}, "", fmt.Errorf("%w: missing closing delimiter", errInvalidFrontmatter)
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return frontmatter{}, "", fmt.Errorf("%w: %v", errInvalidFrontmatter, err)
	}
	return meta, strings.Join(lines[end+1:], "\n"), nil
}
