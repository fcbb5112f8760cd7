package preview

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Locator finds the PNG artifact a snapshot test run produced. It never
// reads or validates image content, only resolves the newest file matching
// the test's naming convention.
type Locator struct {
	extraDirs []string
}

// NewLocator creates a Locator. extraDirs are additional search
// directories relative to the project root, tried after the conventional
// locations and before the recursive last-resort search.
func NewLocator(extraDirs []string) *Locator {
	return &Locator{extraDirs: extraDirs}
}

// Locate searches for test<viewName>.<n>.png under the directories the
// snapshot library is known to use. Within a directory the most recently
// modified match wins (re-recorded snapshots bump the index). A miss is
// reported as ok=false, not an error; the caller decides what it means.
func (l *Locator) Locate(projectRoot, testTarget, viewName, snapshotsDir string) (string, bool) {
	pattern := "test" + viewName + ".*.png"

	dirs := []string{
		filepath.Join(projectRoot, snapshotsDir, snapshotTestClass),
		filepath.Join(projectRoot, testTarget, snapshotsDir, snapshotTestClass),
	}
	for _, extra := range l.extraDirs {
		dirs = append(dirs, filepath.Join(projectRoot, extra))
	}

	for _, dir := range dirs {
		if path, ok := newestMatch(dir, pattern); ok {
			return absOr(path), true
		}
	}

	if path, ok := deepSearch(projectRoot, viewName); ok {
		return absOr(path), true
	}
	return "", false
}

// newestMatch globs pattern in dir and returns the most recently modified
// match.
func newestMatch(dir, pattern string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(matches) == 0 {
		return "", false
	}

	var best string
	var bestTime time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = m
			bestTime = info.ModTime()
		}
	}
	return best, best != ""
}

// deepSearch walks the project root for the snapshot file when none of the
// conventional directories had it. Hidden dirs and build output are
// skipped.
func deepSearch(root, viewName string) (string, bool) {
	prefix := "test" + viewName + "."

	var best string
	var bestTime time.Time
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "build" || name == "DerivedData") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".png") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = path
			bestTime = info.ModTime()
		}
		return nil
	})

	return best, best != ""
}

func absOr(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
