package browser

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/m4xw311/superagent/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPFetcher delegates page loading to a tool on an MCP server, such as a
// Playwright or fetch server. The tool is called with {"url": ...} and its
// text content is returned.
type MCPFetcher struct {
	mu        sync.Mutex
	name      string
	tool      string
	transport func() mcpsdk.Transport
	conn      *mcpsdk.ClientSession
	logger    *slog.Logger
}

// NewMCPFetcher runs command as an MCP server subprocess on first use.
func NewMCPFetcher(command string, args []string, tool string, logger *slog.Logger) *MCPFetcher {
	return newMCPFetcher(command, tool, func() mcpsdk.Transport {
		cmd := exec.Command(command, args...)
		cmd.Stderr = os.Stderr
		return &mcpsdk.CommandTransport{Command: cmd}
	}, logger)
}

func newMCPFetcher(name, tool string, transport func() mcpsdk.Transport, logger *slog.Logger) *MCPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPFetcher{name: name, tool: tool, transport: transport, logger: logger}
}

func (m *MCPFetcher) connect(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "superagent", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, m.transport(), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to MCP server '%s'", m.name)
	}
	m.conn = conn
	m.logger.Info("connected to MCP browser server", "server", m.name, "tool", m.tool)
	return nil
}

func (m *MCPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connect(ctx); err != nil {
		return "", err
	}
	result, err := m.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      m.tool,
		Arguments: map[string]any{"url": url},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", m.tool)
	}

	var b strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", m.tool, b.String())
	}
	return b.String(), nil
}

// Close terminates the MCP session and its server process.
func (m *MCPFetcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
