package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var clipExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
}

// FSLibrary serves clips and music from the local filesystem. Relative
// locators are resolved against Root.
type FSLibrary struct {
	Root string
}

func NewFSLibrary(root string) *FSLibrary {
	return &FSLibrary{Root: root}
}

func (l *FSLibrary) resolve(ref string) string {
	if filepath.IsAbs(ref) || l.Root == "" {
		return ref
	}
	return filepath.Join(l.Root, ref)
}

func (l *FSLibrary) ListClips(ctx context.Context, dir string) ([]string, error) {
	abs := l.resolve(dir)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list clips in %s: %w", dir, err)
	}
	var clips []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if clipExtensions[ext] {
			clips = append(clips, filepath.Join(abs, entry.Name()))
		}
	}
	sort.Strings(clips)
	return clips, nil
}

// ResolveMusic accepts http(s) URLs as-is (ffmpeg reads them directly) and
// requires local paths to exist.
func (l *FSLibrary) ResolveMusic(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	abs := l.resolve(ref)
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("music %s: %w", ref, err)
	}
	return abs, nil
}
