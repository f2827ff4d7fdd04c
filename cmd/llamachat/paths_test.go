package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveStorageRoot(t *testing.T) {
	t.Run("explicit root is created", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "nested", "home")
		got, err := resolveStorageRoot(want)
		if err != nil {
			t.Fatalf("resolveStorageRoot returned error: %v", err)
		}
		if got != want {
			t.Fatalf("unexpected root: got %q want %q", got, want)
		}
		if st, err := os.Stat(got); err != nil || !st.IsDir() {
			t.Fatalf("expected root directory to exist: %v", err)
		}
	})

	t.Run("xdg data home is the fallback", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv("XDG_DATA_HOME", xdg)

		got, err := resolveStorageRoot("  ")
		if err != nil {
			t.Fatalf("resolveStorageRoot returned error: %v", err)
		}
		if want := filepath.Join(xdg, "llamachat"); got != want {
			t.Fatalf("unexpected root: got %q want %q", got, want)
		}
	})

	t.Run("home directory without xdg", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("XDG_DATA_HOME", "")
		t.Setenv("HOME", home)

		got, err := resolveStorageRoot("")
		if err != nil {
			t.Fatalf("resolveStorageRoot returned error: %v", err)
		}
		if want := filepath.Join(home, ".local", "share", "llamachat"); got != want {
			t.Fatalf("unexpected root: got %q want %q", got, want)
		}
	})

	t.Run("root that is a file fails", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := resolveStorageRoot(file); err == nil {
			t.Fatalf("expected error for a file root")
		}
	})
}

func TestResolveModelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		root string
		file string
		want string
	}{
		{"relative joins root", "/data", "m.gguf", "/data/m.gguf"},
		{"absolute wins", "/data", "/models/x.gguf", "/models/x.gguf"},
		{"empty uses default", "/data", "", "/data/" + defaultModelFile},
		{"nested relative", "/data", "sub/m.gguf", "/data/sub/m.gguf"},
	}

	for _, tc := range tests {
		if got := resolveModelPath(tc.root, tc.file); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}
