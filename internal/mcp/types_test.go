package mcp

import "testing"

func TestBridgedToolID(t *testing.T) {
	cases := []struct {
		server, tool, want string
	}{
		{"github", "create_issue", "mcp_github_create_issue"},
		{"my-server", "read/file", "mcp_my_server_read_file"},
		{"s.1", "tool name", "mcp_s_1_tool_name"},
	}
	for _, tc := range cases {
		if got := BridgedToolID(tc.server, tc.tool); got != tc.want {
			t.Errorf("BridgedToolID(%q, %q) = %q, want %q", tc.server, tc.tool, got, tc.want)
		}
	}
}

func TestServerConfigValidate(t *testing.T) {
	ok := ServerConfig{ID: "fs", Command: "mcp-server-fs"}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cases := []ServerConfig{
		{Command: "x"},                       // missing ID
		{ID: "x"},                            // missing command
		{ID: "x", Command: "../../bin/evil"}, // traversal
	}
	for _, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %+v should be rejected", cfg)
		}
	}
}
