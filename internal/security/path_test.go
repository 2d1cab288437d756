package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathInWorkspace(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "images"), 0755))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"relative file", "extracted_data.json", nil},
		{"nested file", "images/extracted_page1_10.0_20.0.png", nil},
		{"absolute inside", filepath.Join(workspace, "images"), nil},
		{"workspace root", workspace, nil},
		{"dot dot", "../../etc/passwd", ErrPathTraversal},
		{"encoded dots", "%2e%2e/secret", ErrPathTraversal},
		{"windows traversal", "..\\windows", ErrPathTraversal},
		{"absolute outside", "/etc/passwd", ErrPathOutsideWorkspace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := ValidatePathInWorkspace(tt.path, workspace)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(sp.Path(), workspace))
		})
	}
}

func TestValidatePathInWorkspace_SymlinkEscape(t *testing.T) {
	workspace := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(workspace, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := ValidatePathInWorkspace("escape/file.png", workspace)
	assert.ErrorIs(t, err, ErrSymlinkEscape)
}

func TestValidateName(t *testing.T) {
	valid := []string{
		"3f6c2a7e-1b2d-4c5e-8f90-123456789abc_floor-plan",
		"extracted_page1_10.0_20.0.png",
		"図面 A.png",
	}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", ".", "..", "a/b", "a\\b", "../x", "nul\x00byte"}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestJoinName(t *testing.T) {
	dir := t.TempDir()

	p, err := JoinName(dir, "extracted_data.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "extracted_data.json"), p)

	_, err = JoinName(dir, "../outside.json")
	assert.Error(t, err)
}
