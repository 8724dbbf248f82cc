package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/fyydbot/internal/intent"
	"github.com/kalambet/fyydbot/internal/pipeline"
)

// MCPFinder runs the podcast search for a free-text request.
type MCPFinder interface {
	Find(ctx context.Context, text string, onIntent func(context.Context, *intent.Query) error) (pipeline.Result, error)
}

// MCPDateResolver turns a date phrase into a day range.
type MCPDateResolver interface {
	ResolveDate(ctx context.Context, hint string) *intent.DateRange
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Finder  MCPFinder
	Dates   MCPDateResolver // optional; if nil, resolve_date is not registered
	Status  *Status
	Version string
}

// NewMCPServer creates an MCP server exposing the podcast search as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"fyydbot",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("fyydbot finds podcast episodes on fyyd.de from a free-text request, in German or English."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_podcasts",
			mcp.WithDescription("Search fyyd.de for podcast episodes matching a free-text request and return the reply the bot would post."),
			mcp.WithString("query", mcp.Description("The request, e.g. 'Podcasts über Kaffee aus dem letzten Jahr'"), mcp.Required()),
			mcp.WithBoolean("details", mcp.Description("Return the extracted query and episodes as JSON instead of the reply text")),
		),
		mcpFindPodcasts(deps),
	)

	if deps.Dates != nil {
		s.AddTool(
			mcp.NewTool("resolve_date",
				mcp.WithDescription("Resolve a date phrase such as 'letzte Woche' or 'March 2023' into an inclusive day range."),
				mcp.WithString("hint", mcp.Description("The date phrase"), mcp.Required()),
			),
			mcpResolveDate(deps),
		)
	}

	if deps.Status != nil {
		s.AddResource(
			mcp.NewResource(
				"fyydbot://status",
				"Bot Status",
				mcp.WithResourceDescription("Uptime, name cache size and counters as JSON"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceStatus(deps),
		)
	}

	return s
}

type episodeResult struct {
	Title       string `json:"title"`
	Podcast     string `json:"podcast"`
	PublishedAt string `json:"published_at,omitempty"`
	URL         string `json:"url,omitempty"`
}

type findResult struct {
	Outcome     string          `json:"outcome"`
	PodcastName string          `json:"podcast_name,omitempty"`
	Keywords    string          `json:"keywords,omitempty"`
	DateRange   string          `json:"date_range,omitempty"`
	Episodes    []episodeResult `json:"episodes"`
	Reply       string          `json:"reply"`
}

func mcpFindPodcasts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}

		res, err := deps.Finder.Find(ctx, query, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if !req.GetBool("details", false) {
			return mcpText(res.Text()), nil
		}

		out := findResult{
			Outcome:  res.Outcome.String(),
			Episodes: make([]episodeResult, len(res.Episodes)),
			Reply:    res.Text(),
		}
		if q := res.Query; q != nil {
			out.PodcastName = q.PodcastName
			out.Keywords = q.Keywords
			out.DateRange = q.DateRange.String()
		}
		for i, ep := range res.Episodes {
			e := episodeResult{Title: ep.Title, Podcast: ep.PodcastName, URL: ep.FyydURL}
			if !ep.PublishedAt.IsZero() {
				e.PublishedAt = ep.PublishedAt.Format(time.RFC3339)
			}
			out.Episodes[i] = e
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveDate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		hint, err := req.RequireString("hint")
		if err != nil || hint == "" {
			return mcpError("hint is required"), nil
		}

		r := deps.Dates.ResolveDate(ctx, hint)
		if r.IsZero() {
			return mcpError(fmt.Sprintf("could not resolve %q", hint)), nil
		}
		return mcpText(r.String()), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		report, err := deps.Status.Report()
		if err != nil {
			return nil, err
		}

		b, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
