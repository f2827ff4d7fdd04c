package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveStorageRoot returns the storage root, creating it when missing.
// An explicit value (flag, LLAMACHAT_HOME or config) wins over the XDG data
// directory.
func resolveStorageRoot(explicit string) (string, error) {
	root := strings.TrimSpace(explicit)
	if root == "" {
		root = defaultStorageRoot()
	}
	if root == "" {
		return "", errors.New("cannot determine storage root; set --storage-root or " + envHome)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create storage root: %w", err)
	}
	if err := checkWritable(root); err != nil {
		return "", fmt.Errorf("storage root %s is not writable: %w", root, err)
	}
	return root, nil
}

func defaultStorageRoot() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "llamachat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "llamachat")
}

// resolveModelPath joins file onto root unless it is already absolute.
func resolveModelPath(root, file string) string {
	file = strings.TrimSpace(file)
	if file == "" {
		file = defaultModelFile
	}
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(root, file)
}
