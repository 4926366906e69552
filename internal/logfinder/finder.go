// Package logfinder locates the game installation's log directory and the
// live log file within it.
package logfinder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EnvLogDir is the environment variable name for specifying the game
// directory explicitly.
const EnvLogDir = "SCLOG_LOGDIR"

// LiveLogName is the file the game appends to while running.
const LiveLogName = "Game.log"

// backupDirName holds rotated copies of earlier sessions.
const backupDirName = "logbackups"

// Sentinel errors.
var (
	ErrLogDirNotFound = errors.New("game log directory not found")
	ErrNoLogFiles     = errors.New("no log files found")
)

// DefaultLogDirs returns candidate game directories in priority order.
// Only the standard Windows install locations are known; on other
// platforms the directory must be given explicitly.
func DefaultLogDirs() []string {
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		return nil
	}
	base := filepath.Join(programFiles, "Roberts Space Industries", "StarCitizen")
	return []string{
		filepath.Join(base, "LIVE"),
		filepath.Join(base, "PTU"),
	}
}

// FindLogDir returns the game directory containing the live log.
//
// Priority:
//  1. explicit (if non-empty)
//  2. SCLOG_LOGDIR environment variable
//  3. Auto-detect from DefaultLogDirs()
//
// The returned path has symlinks resolved for consistency.
func FindLogDir(explicit string) (string, error) {
	if explicit != "" {
		if resolved := resolveAndValidate(explicit); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: specified directory has no %s", ErrLogDirNotFound, LiveLogName)
	}

	if envDir := os.Getenv(EnvLogDir); envDir != "" {
		if resolved := resolveAndValidate(envDir); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s points to an invalid directory", ErrLogDirNotFound, EnvLogDir)
	}

	for _, dir := range DefaultLogDirs() {
		if resolved := resolveAndValidate(dir); resolved != "" {
			return resolved, nil
		}
	}

	return "", ErrLogDirNotFound
}

// FindLiveLog returns the path of the log file to tail in dir: the live
// Game.log when present, otherwise the most recently modified backup.
func FindLiveLog(dir string) (string, error) {
	live := filepath.Join(dir, LiveLogName)
	if info, err := os.Lstat(live); err == nil && info.Mode().IsRegular() {
		return live, nil
	}
	return findLatestBackup(dir)
}

// logCandidate caches the stat result so files deleted between filtering
// and sorting cannot skew the ordering.
type logCandidate struct {
	path    string
	modTime int64
}

func findLatestBackup(dir string) (string, error) {
	pattern := filepath.Join(dir, backupDirName, "*.log")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("globbing log backups: %w", err)
	}
	if len(matches) == 0 {
		return "", ErrNoLogFiles
	}

	candidates := make([]logCandidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, logCandidate{
			path:    m,
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", ErrNoLogFiles
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	return candidates[0].path, nil
}

// resolveAndValidate resolves symlinks and checks the directory holds a
// live log or at least one backup. Returns "" when invalid.
func resolveAndValidate(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}

	if _, err := os.Stat(filepath.Join(resolved, LiveLogName)); err == nil {
		return resolved
	}
	matches, err := filepath.Glob(filepath.Join(resolved, backupDirName, "*.log"))
	if err == nil && len(matches) > 0 {
		return resolved
	}
	return ""
}
