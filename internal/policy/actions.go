// Package policy implements the synchronous security gate in front of
// every tool invocation: path scoping against registered workspaces,
// risk classification of privileged actions, and the human approval
// lifecycle for the actions that need one.
package policy

// ActionKind enumerates the privileged operations the gate evaluates.
// The set is closed; tools describe their side effects only in these
// terms.
type ActionKind string

const (
	ActionFileRead        ActionKind = "file_read"
	ActionFileWrite       ActionKind = "file_write"
	ActionFileDelete      ActionKind = "file_delete"
	ActionDirCreate       ActionKind = "dir_create"
	ActionDirDelete       ActionKind = "dir_delete"
	ActionShellCommand    ActionKind = "shell_command"
	ActionTerminalSpawn   ActionKind = "terminal_spawn"
	ActionGitOperation    ActionKind = "git_operation"
	ActionScreenCapture   ActionKind = "screen_capture"
	ActionInputSimulation ActionKind = "input_simulation"
	ActionClipboardRead   ActionKind = "clipboard_read"
	ActionClipboardWrite  ActionKind = "clipboard_write"
	ActionDBConnect       ActionKind = "db_connect"
	ActionDBQuery         ActionKind = "db_query"
	ActionNetworkRequest  ActionKind = "network_request"
	ActionBrowserLaunch   ActionKind = "browser_launch"
	ActionBrowserNavigate ActionKind = "browser_navigate"
	ActionCredentialRead  ActionKind = "credential_read"
	ActionCredentialWrite ActionKind = "credential_write"
)

// Action is one privileged operation with the minimum context needed to
// evaluate policy. Only the fields relevant to the kind are set.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Path is set for file and directory operations.
	Path string `json:"path,omitempty"`

	// Command is set for shell and terminal operations.
	Command string `json:"command,omitempty"`

	// Domain and Method are set for network operations.
	Domain string `json:"domain,omitempty"`
	Method string `json:"method,omitempty"`

	// Query is set for database operations.
	Query string `json:"query,omitempty"`

	// Recursive is set for directory deletes.
	Recursive bool `json:"recursive,omitempty"`

	// SensitiveData flags network payloads carrying credentials or
	// secrets.
	SensitiveData bool `json:"sensitive_data,omitempty"`
}

// mutates reports whether the action changes external state.
func (a Action) mutates() bool {
	switch a.Kind {
	case ActionFileRead, ActionScreenCapture, ActionClipboardRead,
		ActionCredentialRead, ActionDBConnect:
		return false
	case ActionDBQuery:
		return queryMutates(a.Query)
	case ActionNetworkRequest:
		return a.Method != "" && a.Method != "GET" && a.Method != "HEAD"
	default:
		return true
	}
}
