package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Locator finds artifact documents by id across a set of directories.
type Locator struct {
	dirs []string
}

// NewLocator searches dirs in order. Blank entries are ignored.
func NewLocator(dirs []string) *Locator {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			cleaned = append(cleaned, dir)
		}
	}
	return &Locator{dirs: cleaned}
}

// Dirs returns the searched directories.
func (l *Locator) Dirs() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.dirs...)
}

// Find returns the artifact with the given id. A file named <id>.json in any
// directory wins; otherwise each directory tree is scanned for a document
// whose meta.artifact_id equals id. Documents that fail to decode are skipped
// during the scan but reported when they are the direct name match.
func (l *Locator) Find(ctx context.Context, id string) (*Artifact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, dir := range l.dirs {
		direct := filepath.Join(dir, id+".json")
		if _, err := os.Stat(direct); err == nil {
			return Load(direct)
		}
	}
	for _, dir := range l.dirs {
		found, err := l.scan(ctx, dir, id)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (l *Locator) scan(ctx context.Context, dir, id string) (*Artifact, error) {
	var found *Artifact
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		if stem(path) == id {
			art, err := Load(path)
			if err != nil {
				return err
			}
			found = art
			return fs.SkipAll
		}
		art, err := Load(path)
		if err != nil {
			return nil
		}
		if strings.TrimSpace(art.Meta.ArtifactID) == id {
			found = art
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// All loads every decodable artifact under the configured directories.
// Undecodable documents are returned separately so callers can report them.
func (l *Locator) All(ctx context.Context) ([]*Artifact, map[string]error, error) {
	var (
		out    []*Artifact
		failed = map[string]error{}
	)
	if l == nil {
		return nil, failed, nil
	}
	for _, dir := range l.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if ctx != nil {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			art, err := Load(path)
			if err != nil {
				failed[path] = err
				return nil
			}
			out = append(out, art)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return out, failed, nil
}
