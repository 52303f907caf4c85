package tools

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

const maxFilePathLen = 4096

// ValidationResult carries the canonicalized arguments plus any unknown
// keys that were ignored (recorded for the audit event).
type ValidationResult struct {
	Args    map[string]any
	Unknown []string
}

// ValidateArgs checks raw JSON arguments against the descriptor's
// parameter list: required presence, type conformance, FilePath/URL
// shape checks, and JSON Schema validation for constrained objects.
// Unknown keys are ignored but recorded. Optional parameters with
// defaults are filled in. Failures are invalid-parameter tool errors
// and never retryable.
func ValidateArgs(d Descriptor, raw json.RawMessage) (*ValidationResult, error) {
	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		if err := decoder.Decode(&args); err != nil {
			return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters,
				"%s: arguments are not a JSON object", d.ID).Wrap(err)
		}
	}

	known := make(map[string]bool, len(d.Parameters))
	out := make(map[string]any, len(args))

	for _, p := range d.Parameters {
		known[p.Name] = true
		value, present := args[p.Name]

		if !present || value == nil {
			if p.Required {
				return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters,
					"%s: missing required parameter %q", d.ID, p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		coerced, err := checkType(d.ID, p, value)
		if err != nil {
			return nil, err
		}
		out[p.Name] = coerced
	}

	var unknown []string
	for key := range args {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}

	return &ValidationResult{Args: out, Unknown: unknown}, nil
}

func checkType(toolID string, p Parameter, value any) (any, error) {
	fail := func(want string) error {
		return errdefs.NewToolError(errdefs.ToolInvalidParameters,
			"%s: parameter %q must be %s", toolID, p.Name, want)
	}

	switch p.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fail("a string")
		}
		return s, nil

	case TypeInteger:
		num, ok := value.(json.Number)
		if !ok {
			return nil, fail("an integer")
		}
		i, err := num.Int64()
		if err != nil {
			// Accept float-typed wire integers like 3.0.
			f, ferr := num.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return nil, fail("an integer")
			}
			i = int64(f)
		}
		return i, nil

	case TypeFloat:
		num, ok := value.(json.Number)
		if !ok {
			return nil, fail("a number")
		}
		f, err := num.Float64()
		if err != nil {
			return nil, fail("a number")
		}
		return f, nil

	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fail("a boolean")
		}
		return b, nil

	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return nil, fail("an array")
		}
		return arr, nil

	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fail("an object")
		}
		if len(p.Schema) > 0 {
			if err := validateSchema(toolID, p, obj); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case TypeFilePath:
		s, ok := value.(string)
		if !ok {
			return nil, fail("a file path string")
		}
		if err := checkFilePath(toolID, p.Name, s); err != nil {
			return nil, err
		}
		return s, nil

	case TypeURL:
		s, ok := value.(string)
		if !ok {
			return nil, fail("a URL string")
		}
		parsed, err := url.Parse(s)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters,
				"%s: parameter %q is not a valid URL", toolID, p.Name)
		}
		return s, nil

	default:
		return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters,
			"%s: parameter %q has unknown type %q", toolID, p.Name, p.Type)
	}
}

func checkFilePath(toolID, name, path string) error {
	reject := func(why string) error {
		return errdefs.NewToolError(errdefs.ToolInvalidParameters,
			"%s: parameter %q %s", toolID, name, why)
	}
	if path == "" {
		return reject("is empty")
	}
	if len(path) > maxFilePathLen {
		return reject("exceeds the path length limit")
	}
	if strings.ContainsRune(path, 0) {
		return reject("contains a null byte")
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return reject("contains a parent traversal")
		}
	}
	return nil
}

func validateSchema(toolID string, p Parameter, obj map[string]any) error {
	schema, err := jsonschema.CompileString(p.Name+".schema.json", string(p.Schema))
	if err != nil {
		return errdefs.Config("%s: parameter %q carries an invalid schema", toolID, p.Name).Wrap(err)
	}
	if err := schema.Validate(obj); err != nil {
		return errdefs.NewToolError(errdefs.ToolInvalidParameters,
			"%s: parameter %q failed schema validation", toolID, p.Name).Wrap(err)
	}
	return nil
}
