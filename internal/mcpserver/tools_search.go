package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/panoptikon-go/panoptikon/internal/pql"
	"github.com/panoptikon-go/panoptikon/internal/search"
)

// AddSearchTool registers the panoptikon_search tool: path/mime/text/tag
// filters ANDed together, run through C10's facade (decode, compile,
// paginate, count).
func AddSearchTool(s *server.MCPServer, facade *search.Facade) {
	tool := mcp.NewTool(
		"panoptikon_search",
		mcp.WithDescription("Search the media index by path, MIME type, full text, or tags. Returns a paginated, counted result set."),
		mcp.WithArray("path", mcp.Description("match files whose path starts with one of these prefixes")),
		mcp.WithArray("mime", mcp.Description("match files whose MIME type starts with one of these prefixes")),
		mcp.WithString("text", mcp.Description("full-text search query against extracted text")),
		mcp.WithArray("tags", mcp.Description("match items tagged with any of these tags")),
		mcp.WithNumber("page", mcp.Description("zero-indexed result page (default 0)")),
		mcp.WithNumber("page_size", mcp.Description("results per page (default 100)")),
		mcp.WithString("order_by", mcp.Description("column to order by (default: last_modified)")),
		mcp.WithBoolean("desc", mcp.Description("sort descending")),
	)
	s.AddTool(tool, createSearchHandler(facade))
}

func createSearchHandler(facade *search.Facade) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		var children []pql.Node
		if prefixes := stringSlice(argsMap["path"]); len(prefixes) > 0 {
			children = append(children, &pql.PathFilter{Prefixes: prefixes})
		}
		if prefixes := stringSlice(argsMap["mime"]); len(prefixes) > 0 {
			children = append(children, &pql.MimeFilter{Prefixes: prefixes})
		}
		if text, ok := argsMap["text"].(string); ok && text != "" {
			children = append(children, &pql.FTSFilter{Text: text})
		}
		if tags := stringSlice(argsMap["tags"]); len(tags) > 0 {
			children = append(children, &pql.TagMatchFilter{Tags: tags})
		}

		var query pql.Node
		switch len(children) {
		case 0:
		case 1:
			query = children[0]
		default:
			query = &pql.And{Children: children}
		}

		orderBy, _ := argsMap["order_by"].(string)
		direction := pql.OrderDefault
		if desc, ok := argsMap["desc"].(bool); ok && desc {
			direction = pql.OrderDesc
		} else if orderBy != "" {
			direction = pql.OrderAsc
		}
		orderArgs := []pql.OrderArgs{{OrderBy: orderBy, Order: direction}}

		q := pql.SearchQuery{
			Query:     query,
			OrderArgs: orderArgs,
			Page:      intArg(argsMap["page"], 0),
			PageSize:  intArg(argsMap["page_size"], 100),
		}

		if err := search.DecodeSimilarityEmbeddings(&q); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := facade.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		jsonData, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(v any, def int) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return def
}
