package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/tools"
)

// maxShellOutputBytes truncates captured output; full output still lands
// on disk if the command redirects it.
const maxShellOutputBytes = 1 << 20

// ShellCommandTool runs a command through the platform shell.
type ShellCommandTool struct{}

// Descriptor describes the tool.
func (ShellCommandTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "shell_command",
		Name:         "Shell Command",
		Description:  "Run a command through the system shell and capture its output.",
		Capabilities: []tools.Capability{tools.CapabilityShellExecute},
		Parameters: []tools.Parameter{
			{Name: "command", Type: tools.TypeString, Required: true, Description: "Command line to execute."},
			{Name: "workdir", Type: tools.TypeFilePath, Required: false, Description: "Working directory."},
			{Name: "timeout_seconds", Type: tools.TypeInteger, Required: false, Default: 60, Description: "Wall-clock limit."},
		},
		Estimated: resources.Usage{CPUPercent: 10, MemoryMB: 64},
	}
}

// Actions reports the command for risk grading.
func (ShellCommandTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionShellCommand, Command: stringArg(args, "command")}}
}

// Execute runs the command, honoring the per-call timeout and the
// caller's cancellation.
func (ShellCommandTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	command := stringArg(args, "command")

	timeout := 60 * time.Second
	if v, ok := args["timeout_seconds"].(int64); ok && v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if workdir := stringArg(args, "workdir"); workdir != "" {
		cmd.Dir = workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, errdefs.Timeout("shell command exceeded %s", timeout)
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, errdefs.NewToolError(errdefs.ToolCodeExecution, "run command").Wrap(err)
		}
	}

	return json.Marshal(map[string]any{
		"exit_code": exitCode,
		"stdout":    truncate(stdout.String(), maxShellOutputBytes),
		"stderr":    truncate(stderr.String(), maxShellOutputBytes),
	})
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
