package errdefs

// RecoveryActionKind enumerates the advisory recovery actions.
type RecoveryActionKind string

const (
	RecoveryRetry               RecoveryActionKind = "retry"
	RecoveryElevatePermission   RecoveryActionKind = "elevate_permission"
	RecoveryClearCachesAndRetry RecoveryActionKind = "clear_caches_and_retry"
	RecoveryCreateDefaults      RecoveryActionKind = "create_defaults"
	RecoverySurfaceToUser       RecoveryActionKind = "surface_to_user"
	RecoveryAbort               RecoveryActionKind = "abort"
)

// RecoveryAction is the manager's advisory response to a failure. Callers
// may honor or ignore it.
type RecoveryAction struct {
	Kind RecoveryActionKind

	// PolicyName names the retry preset to apply when Kind is
	// RecoveryRetry (see the retry package).
	PolicyName string
}

// RecoveryManager suggests recovery actions from the error taxonomy.
type RecoveryManager struct {
	store *ContextStore
}

// NewRecoveryManager creates a manager recording contexts into store.
// A nil store disables context recording.
func NewRecoveryManager(store *ContextStore) *RecoveryManager {
	return &RecoveryManager{store: store}
}

// Suggest maps err to an advisory recovery action and records an error
// context for diagnostics.
func (m *RecoveryManager) Suggest(err error, step, tool string) RecoveryAction {
	if m.store != nil {
		m.store.Add(NewContext(err, step, tool, ""))
	}

	e, ok := AsError(err)
	if !ok {
		return RecoveryAction{Kind: RecoverySurfaceToUser}
	}

	switch e.Kind {
	case KindPermission:
		return RecoveryAction{Kind: RecoveryElevatePermission}
	case KindConfig:
		return RecoveryAction{Kind: RecoveryCreateDefaults}
	case KindFatal:
		return RecoveryAction{Kind: RecoveryAbort}
	case KindResource:
		return RecoveryAction{Kind: RecoveryRetry, PolicyName: "network"}
	case KindLLM:
		switch e.LLM {
		case LLMRateLimit, LLMNetwork, LLMTimeout:
			return RecoveryAction{Kind: RecoveryRetry, PolicyName: "llm"}
		case LLMContextLength:
			return RecoveryAction{Kind: RecoveryClearCachesAndRetry}
		case LLMAuth:
			return RecoveryAction{Kind: RecoveryElevatePermission}
		default:
			return RecoveryAction{Kind: RecoverySurfaceToUser}
		}
	case KindTool:
		switch e.Tool {
		case ToolFileSystem:
			return RecoveryAction{Kind: RecoveryRetry, PolicyName: "filesystem"}
		case ToolDatabase:
			return RecoveryAction{Kind: RecoveryRetry, PolicyName: "database"}
		case ToolBrowser, ToolAPI:
			return RecoveryAction{Kind: RecoveryRetry, PolicyName: "network"}
		case ToolInvalidParameters, ToolNotFound:
			return RecoveryAction{Kind: RecoverySurfaceToUser}
		default:
			return RecoveryAction{Kind: RecoverySurfaceToUser}
		}
	case KindTransient, KindTimeout:
		return RecoveryAction{Kind: RecoveryRetry, PolicyName: "network"}
	default:
		return RecoveryAction{Kind: RecoverySurfaceToUser}
	}
}
