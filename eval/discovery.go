package eval

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// JudgesDir is the conventional directory, relative to a suite or project
// root, scanned for user-supplied scoring scripts.
const JudgesDir = ".evalgate/judges"

// DiscoverScripts scans startDir and its ancestors for a JudgesDir and
// registers every executable script found there as an evaluator type
// named after the file (extension stripped). Each discovered type always
// produces an external-script evaluator pointed at that file.
//
// Built-in type names are never overridden, and a script closer to
// startDir shadows one with the same name further up.
func DiscoverScripts(r *Registry, startDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return fmt.Errorf("resolve start directory: %w", err)
	}

	for {
		judgesDir := filepath.Join(dir, JudgesDir)
		entries, err := os.ReadDir(judgesDir)
		if err == nil {
			if err := registerScripts(r, judgesDir, entries, logger); err != nil {
				return err
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("read judges directory %s: %w", judgesDir, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func registerScripts(r *Registry, judgesDir string, entries []fs.DirEntry, logger *slog.Logger) error {
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat judge script %s: %w", entry.Name(), err)
		}
		if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			logger.Debug("skipping non-executable file in judges directory",
				"file", entry.Name(), "dir", judgesDir)
			continue
		}

		typeName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if typeName == "" {
			continue
		}
		if r.IsBuiltin(typeName) {
			logger.Warn("judge script shadows a built-in evaluator type; ignoring",
				"type", typeName, "script", filepath.Join(judgesDir, entry.Name()))
			continue
		}
		if r.Has(typeName) {
			// Nearer ancestor already registered this name.
			logger.Debug("judge script type already registered; ignoring",
				"type", typeName, "script", filepath.Join(judgesDir, entry.Name()))
			continue
		}

		scriptPath := filepath.Join(judgesDir, entry.Name())
		if err := r.Register(typeName, newScriptFactory(scriptPath)); err != nil {
			return err
		}
		logger.Info("registered judge script", "type", typeName, "script", scriptPath)
	}
	return nil
}
