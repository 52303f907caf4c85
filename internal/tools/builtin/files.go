// Package builtin registers the tools every deployment ships with:
// file I/O, directory listing, shell commands, HTTP requests and
// queries against the embedded store.
package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/tools"
)

// maxFileReadBytes bounds file_read output so a plan cannot drag an
// arbitrarily large file into an LLM context.
const maxFileReadBytes = 10 << 20

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, name string) bool {
	v, ok := args[name].(bool)
	return ok && v
}

// FileReadTool reads a file and returns its contents.
type FileReadTool struct{}

// Descriptor describes the tool.
func (FileReadTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "file_read",
		Name:         "Read File",
		Description:  "Read the contents of a text file.",
		Capabilities: []tools.Capability{tools.CapabilityFileRead},
		Parameters: []tools.Parameter{
			{Name: "path", Type: tools.TypeFilePath, Required: true, Description: "Path of the file to read."},
		},
		Estimated: resources.Usage{CPUPercent: 1, MemoryMB: 16},
	}
}

// Actions reports the privileged operations for the policy gate.
func (FileReadTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionFileRead, Path: stringArg(args, "path")}}
}

// Execute reads the file.
func (FileReadTool) Execute(_ context.Context, args map[string]any) (json.RawMessage, error) {
	path := stringArg(args, "path")
	info, err := os.Stat(path)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "stat %s", path).Wrap(err)
	}
	if info.Size() > maxFileReadBytes {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "%s exceeds the %dMB read limit", path, maxFileReadBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "read %s", path).Wrap(err)
	}
	return json.Marshal(string(data))
}

// FileWriteTool writes content to a file, creating parents as needed.
type FileWriteTool struct{}

func (FileWriteTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "file_write",
		Name:         "Write File",
		Description:  "Write text content to a file, creating parent directories as needed.",
		Capabilities: []tools.Capability{tools.CapabilityFileWrite},
		Parameters: []tools.Parameter{
			{Name: "path", Type: tools.TypeFilePath, Required: true, Description: "Destination path."},
			{Name: "content", Type: tools.TypeString, Required: true, Description: "Content to write."},
			{Name: "append", Type: tools.TypeBoolean, Required: false, Default: false, Description: "Append instead of overwrite."},
		},
		Estimated: resources.Usage{CPUPercent: 1, MemoryMB: 16, StorageMB: 8},
	}
}

func (FileWriteTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionFileWrite, Path: stringArg(args, "path")}}
}

func (FileWriteTool) Execute(_ context.Context, args map[string]any) (json.RawMessage, error) {
	path := stringArg(args, "path")
	content := stringArg(args, "content")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "create parent of %s", path).Wrap(err)
	}

	if boolArg(args, "append") {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "open %s", path).Wrap(err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "append %s", path).Wrap(err)
		}
	} else if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "write %s", path).Wrap(err)
	}

	return json.Marshal(map[string]any{"path": path, "bytes": len(content)})
}

// FileDeleteTool deletes a single file.
type FileDeleteTool struct{}

func (FileDeleteTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "file_delete",
		Name:         "Delete File",
		Description:  "Delete a single file.",
		Capabilities: []tools.Capability{tools.CapabilityFileWrite},
		Parameters: []tools.Parameter{
			{Name: "path", Type: tools.TypeFilePath, Required: true, Description: "Path of the file to delete."},
		},
		Estimated: resources.Usage{CPUPercent: 1, MemoryMB: 8},
	}
}

func (FileDeleteTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionFileDelete, Path: stringArg(args, "path")}}
}

func (FileDeleteTool) Execute(_ context.Context, args map[string]any) (json.RawMessage, error) {
	path := stringArg(args, "path")
	info, err := os.Stat(path)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "stat %s", path).Wrap(err)
	}
	if info.IsDir() {
		return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters, "%s is a directory", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "delete %s", path).Wrap(err)
	}
	return json.Marshal(map[string]any{"deleted": path})
}

// ListDirTool lists the entries of a directory.
type ListDirTool struct{}

func (ListDirTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "list_dir",
		Name:         "List Directory",
		Description:  "List the entries of a directory.",
		Capabilities: []tools.Capability{tools.CapabilityFileRead},
		Parameters: []tools.Parameter{
			{Name: "path", Type: tools.TypeFilePath, Required: true, Description: "Directory to list."},
		},
		Estimated: resources.Usage{CPUPercent: 1, MemoryMB: 8},
	}
}

func (ListDirTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionFileRead, Path: stringArg(args, "path")}}
}

func (ListDirTool) Execute(_ context.Context, args map[string]any) (json.RawMessage, error) {
	path := stringArg(args, "path")
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolFileSystem, "list %s", path).Wrap(err)
	}

	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		item := entry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			item.Size = info.Size()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return json.Marshal(out)
}
