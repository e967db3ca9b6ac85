package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "scope.png"), safeDir, false},
		{"nested new file", filepath.Join(safeDir, "plots", "today", "scope.png"), safeDir, false},
		{"dot dot escape", filepath.Join(safeDir, "..", "scope.png"), safeDir, true},
		{"sibling directory", filepath.Join(unsafeDir, "scope.png"), safeDir, true},
		{"through symlink", filepath.Join(safeDir, "evil-symlink", "scope.png"), safeDir, true},
		{"the directory itself", safeDir, safeDir, false},
		{"missing safe directory", filepath.Join(safeDir, "x.png"), filepath.Join(tmpDir, "nope"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "scope.svg"), []string{a, b}); err != nil {
		t.Errorf("path in second dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "scope.svg"), []string{a}); err == nil {
		t.Error("path outside allowed dirs accepted")
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(a, "scope.svg"), nil); err == nil {
		t.Error("empty allowed list accepted")
	}
}

func TestValidatePlotPath(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name      string
		path      string
		wantError bool
	}{
		{"png in temp", filepath.Join(tmp, "scope.png"), false},
		{"upper case svg", filepath.Join(tmp, "scope.SVG"), false},
		{"relative in cwd", "scope.pdf", false},
		{"no extension", filepath.Join(tmp, "scope"), true},
		{"unsupported extension", filepath.Join(tmp, "scope.gif"), true},
		{"escapes cwd", "../../../../../../../../etc/scope.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlotPath(tt.path)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePlotPath(%q) error = %v, wantError %v", tt.path, err, tt.wantError)
			}
		})
	}
}
