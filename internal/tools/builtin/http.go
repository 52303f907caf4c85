package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/policy"
	"github.com/agiworkforce/workforce/internal/resources"
	"github.com/agiworkforce/workforce/internal/tools"
)

// maxHTTPResponseBytes bounds captured response bodies.
const maxHTTPResponseBytes = 4 << 20

// HTTPRequestTool performs an HTTP request.
type HTTPRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool creates the tool with a 30-second client timeout.
func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{client: &http.Client{Timeout: 30 * time.Second}}
}

// Descriptor describes the tool.
func (*HTTPRequestTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:           "http_request",
		Name:         "HTTP Request",
		Description:  "Perform an HTTP request and return status, headers and body.",
		Capabilities: []tools.Capability{tools.CapabilityNetworkOperation},
		Parameters: []tools.Parameter{
			{Name: "url", Type: tools.TypeURL, Required: true, Description: "Request URL."},
			{Name: "method", Type: tools.TypeString, Required: false, Default: "GET", Description: "HTTP method."},
			{Name: "body", Type: tools.TypeString, Required: false, Description: "Request body."},
			{Name: "headers", Type: tools.TypeObject, Required: false, Description: "Request headers."},
		},
		Estimated: resources.Usage{CPUPercent: 2, MemoryMB: 32, NetworkMbps: 5},
	}
}

// Actions reports the request for risk grading. Bodies that trip the
// redaction patterns are flagged as sensitive.
func (*HTTPRequestTool) Actions(args map[string]any) []policy.Action {
	raw := stringArg(args, "url")
	method := strings.ToUpper(stringArg(args, "method"))
	if method == "" {
		method = "GET"
	}
	domain := ""
	if parsed, err := url.Parse(raw); err == nil {
		domain = parsed.Hostname()
	}
	body := stringArg(args, "body")
	return []policy.Action{{
		Kind:          policy.ActionNetworkRequest,
		Domain:        domain,
		Method:        method,
		SensitiveData: body != "" && errdefs.Redact(body) != body,
	}}
}

// Execute performs the request.
func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	rawURL := stringArg(args, "url")
	method := strings.ToUpper(stringArg(args, "method"))
	if method == "" {
		method = "GET"
	}

	var body io.Reader
	if b := stringArg(args, "body"); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolInvalidParameters, "build request for %s", rawURL).Wrap(err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolAPI, "request %s %s failed", method, rawURL).Wrap(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return nil, errdefs.NewToolError(errdefs.ToolAPI, "read response from %s", rawURL).Wrap(err)
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return json.Marshal(map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(data),
	})
}
