package policy

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// maxPathLen bounds any path the gate will evaluate.
const maxPathLen = 4096

// ScopeClass locates a path relative to the registered workspaces.
type ScopeClass string

const (
	ScopeInWorkspace ScopeClass = "in_workspace"
	ScopeInUserHome  ScopeClass = "in_user_home"
	ScopeOutside     ScopeClass = "outside_scope"
)

// Workspace is a user-registered directory tree within which file
// operations are presumptively permitted.
type Workspace struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Root      string    `json:"root" yaml:"root"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// ScopeManager registers workspaces and classifies paths against them
// and the system blacklist.
type ScopeManager struct {
	mu         sync.RWMutex
	workspaces []Workspace
	blacklist  []string
	sensitive  []string
	home       string
}

// NewScopeManager creates a manager with the default blacklist.
func NewScopeManager() *ScopeManager {
	home, _ := os.UserHomeDir()
	return &ScopeManager{
		blacklist: defaultBlacklist(home),
		sensitive: []string{".env", "credentials", "id_rsa", "id_ed25519", ".netrc", ".pgpass"},
		home:      home,
	}
}

func defaultBlacklist(home string) []string {
	list := []string{
		"/etc/passwd",
		"/etc/shadow",
		"/etc/sudoers",
		"/root",
		`C:\Windows\System32`,
		`C:\Windows\SysWOW64`,
		`C:\Program Files`,
		`C:\Program Files (x86)`,
	}
	if home != "" {
		list = append(list,
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".gnupg"),
		)
	}
	return list
}

// AddWorkspace registers a workspace. The root must exist, be a
// directory, and not sit inside the blacklist.
func (m *ScopeManager) AddWorkspace(ws Workspace) error {
	info, err := os.Stat(ws.Root)
	if err != nil {
		return errdefs.Config("workspace root %s does not exist", ws.Root).Wrap(err)
	}
	if !info.IsDir() {
		return errdefs.Config("workspace root %s is not a directory", ws.Root)
	}
	canonical, err := filepath.Abs(ws.Root)
	if err != nil {
		return errdefs.Config("workspace root %s cannot be resolved", ws.Root).Wrap(err)
	}
	ws.Root = canonical

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, blocked := range m.blacklist {
		if isWithin(canonical, blocked) {
			return errdefs.Permission("workspace root %s is inside a protected directory", ws.Root)
		}
	}
	m.workspaces = append(m.workspaces, ws)
	return nil
}

// RemoveWorkspace unregisters a workspace by ID.
func (m *ScopeManager) RemoveWorkspace(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.workspaces[:0]
	for _, ws := range m.workspaces {
		if ws.ID != id {
			kept = append(kept, ws)
		}
	}
	m.workspaces = kept
}

// Workspaces returns the registered workspaces.
func (m *ScopeManager) Workspaces() []Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Workspace, len(m.workspaces))
	copy(out, m.workspaces)
	return out
}

// CheckPathScope canonicalizes path, rejects malformed input, blocks the
// blacklist, and classifies the result. isMutation covers writes and
// deletes; it tightens the blacklist decision but not the
// classification.
func (m *ScopeManager) CheckPathScope(path string, isMutation bool) (ScopeClass, error) {
	if path == "" {
		return ScopeOutside, errdefs.NewToolError(errdefs.ToolInvalidParameters, "path is empty")
	}
	if len(path) > maxPathLen {
		return ScopeOutside, errdefs.NewToolError(errdefs.ToolInvalidParameters, "path exceeds %d characters", maxPathLen)
	}
	if strings.ContainsRune(path, 0) {
		return ScopeOutside, errdefs.NewToolError(errdefs.ToolInvalidParameters, "path contains a null byte")
	}
	if containsDotDot(path) {
		return ScopeOutside, errdefs.NewToolError(errdefs.ToolInvalidParameters, "path contains a parent traversal")
	}

	canonical, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return ScopeOutside, errdefs.NewToolError(errdefs.ToolInvalidParameters, "path cannot be resolved").Wrap(err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, blocked := range m.blacklist {
		if isWithin(canonical, blocked) {
			return ScopeOutside, errdefs.Permission("path %s is inside a protected directory", canonical)
		}
	}

	for _, ws := range m.workspaces {
		if isWithin(canonical, ws.Root) {
			return ScopeInWorkspace, nil
		}
	}
	if m.home != "" && isWithin(canonical, m.home) {
		return ScopeInUserHome, nil
	}
	return ScopeOutside, nil
}

// IsSensitivePath reports whether the path matches the sensitive file
// pattern list (reads of these outside a workspace require approval).
func (m *ScopeManager) IsSensitivePath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pattern := range m.sensitive {
		if strings.Contains(base, pattern) {
			return true
		}
	}
	return false
}

func containsDotDot(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func isWithin(path, root string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
