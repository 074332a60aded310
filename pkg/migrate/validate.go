package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks migration filenames, duplicate versions and goose
// annotations. An empty directory is valid.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateAnnotations(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateAnnotations(name, txt string) error {
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(txt, marker) {
			return fmt.Errorf("migration %q missing %q", name, marker)
		}
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, begins, ends)
	}
	return nil
}
