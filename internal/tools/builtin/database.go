package builtin

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/tools"
)

// maxQueryRows bounds result sets returned to plans.
const maxQueryRows = 1000

// DBQueryTool runs SQL against the embedded store.
type DBQueryTool struct {
	db *sql.DB
}

// NewDBQueryTool creates the tool over the given database handle.
func NewDBQueryTool(db *sql.DB) *DBQueryTool {
	return &DBQueryTool{db: db}
}

// Descriptor describes the tool.
func (*DBQueryTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "db_query",
		Name:         "Database Query",
		Description:  "Run a SQL statement against the embedded database.",
		Capabilities: []tools.Capability{tools.CapabilityDatabaseAccess},
		Parameters: []tools.Parameter{
			{Name: "query", Type: tools.TypeString, Required: true, Description: "SQL statement."},
		},
		Estimated: resources.Usage{CPUPercent: 5, MemoryMB: 64},
	}
}

// Actions reports the query for risk grading.
func (*DBQueryTool) Actions(args map[string]any) []policy.Action {
	return []policy.Action{{Kind: policy.ActionDBQuery, Query: stringArg(args, "query")}}
}

// Execute runs the statement. SELECTs return rows; everything else
// returns the affected row count.
func (t *DBQueryTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	query := stringArg(args, "query")

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolDatabase, "query failed").Wrap(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolDatabase, "read columns").Wrap(err)
	}

	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxQueryRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errdefs.NewToolError(errdefs.ToolDatabase, "scan row").Wrap(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolDatabase, "iterate rows").Wrap(err)
	}

	return json.Marshal(map[string]any{"columns": cols, "rows": out, "row_count": len(out)})
}

// RegisterBuiltins registers the standard tool set on the registry.
func RegisterBuiltins(registry *tools.Registry, db *sql.DB) {
	registry.Register(FileReadTool{})
	registry.Register(FileWriteTool{})
	registry.Register(FileDeleteTool{})
	registry.Register(ListDirTool{})
	registry.Register(ShellCommandTool{})
	registry.Register(NewHTTPRequestTool())
	if db != nil {
		registry.Register(NewDBQueryTool(db))
	}
}
