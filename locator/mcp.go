// CLAUDE:SUMMARY Registers the locator_* MCP tools: resolve, dereference, describe, candidates, named-locator CRUD, history, stats.
package locator

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domlocator/kit"
)

// RegisterMCP registers the resolver tools on an MCP server.
func (r *Resolver) RegisterMCP(srv *mcp.Server) {
	register[resolveRequest](srv, r.ops.resolve, &mcp.Tool{
		Name:        "locator_resolve",
		Description: "Resolve a locator (or a saved locator by name) to a single element of a page. Returns a handle to reuse with locator_dereference.",
		InputSchema: inputSchema(withSnapshot(map[string]any{
			"locator": locatorSchema,
			"name":    map[string]any{"type": "string", "description": "Name of a saved locator, instead of locator"},
		}), nil),
	})
	register[dereferenceRequest](srv, r.ops.dereference, &mcp.Tool{
		Name:        "locator_dereference",
		Description: "Find the element a handle points to in the current page, re-resolving it if the element changed.",
		InputSchema: inputSchema(withSnapshot(map[string]any{
			"handle": map[string]any{"type": "object", "description": "Handle returned by locator_resolve"},
		}), []string{"handle"}),
	})
	register[describeRequest](srv, r.ops.describe, &mcp.Tool{
		Name:        "locator_describe",
		Description: "Explain a locator in plain words, with the confidence each strategy contributes.",
		InputSchema: inputSchema(map[string]any{"locator": locatorSchema}, []string{"locator"}),
	})
	register[candidatesRequest](srv, r.ops.candidates, &mcp.Tool{
		Name:        "locator_candidates",
		Description: "Rank every element a locator matches, with per-strategy match counts. Useful to debug not-found or ambiguous locators.",
		InputSchema: inputSchema(withSnapshot(map[string]any{
			"locator": locatorSchema,
			"limit":   map[string]any{"type": "integer", "description": "Max candidates (default all)"},
		}), []string{"locator"}),
	})
	register[saveRequest](srv, r.ops.save, &mcp.Tool{
		Name:        "locator_save",
		Description: "Save a locator under a name for later use with locator_resolve.",
		InputSchema: inputSchema(map[string]any{
			"name":        map[string]any{"type": "string", "description": "Locator name (letters, digits, _ - . :)"},
			"page_id":     map[string]any{"type": "string", "description": "Page the locator belongs to"},
			"description": map[string]any{"type": "string", "description": "What the locator designates"},
			"locator":     locatorSchema,
		}, []string{"name", "locator"}),
	})
	register[listRequest](srv, r.ops.list, &mcp.Tool{
		Name:        "locator_list",
		Description: "List saved locators with their success rate and usage.",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Only locators of this page"},
			"limit":   map[string]any{"type": "integer", "description": "Max results"},
		}, nil),
	})
	register[nameRequest](srv, r.ops.remove, &mcp.Tool{
		Name:        "locator_delete",
		Description: "Delete a saved locator and its resolution history.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Locator name"},
		}, []string{"name"}),
	})
	register[nameRequest](srv, r.ops.history, &mcp.Tool{
		Name:        "locator_history",
		Description: "Latest resolution outcomes of a saved locator, newest first.",
		InputSchema: inputSchema(map[string]any{
			"name":  map[string]any{"type": "string", "description": "Locator name"},
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 20)"},
		}, []string{"name"}),
	})
	register[statsRequest](srv, r.ops.stats, &mcp.Tool{
		Name:        "locator_stats",
		Description: "Resolver counters (resolutions, cache, stale and lost handles) and registry size.",
		InputSchema: inputSchema(map[string]any{}, nil),
	})
}

func register[T any](srv *mcp.Server, ep kit.Endpoint, tool *mcp.Tool) {
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		v, err := kit.DecodeArgs[T](req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: v}, nil
	}
	kit.RegisterMCPTool(srv, tool, ep, decode)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func withSnapshot(properties map[string]any) map[string]any {
	properties["html"] = map[string]any{"type": "string", "description": "Page markup. Omit to use the live page"}
	properties["page_id"] = map[string]any{"type": "string", "description": "Page identifier (default: hash of html)"}
	properties["version"] = map[string]any{"type": "integer", "description": "Snapshot version of the markup (default 1)"}
	return properties
}

var strategySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"kind": map[string]any{"type": "string", "enum": []any{
			"attribute-equals", "attribute-contains", "tag-equals", "text-equals",
			"text-contains", "css-like-path", "relative",
		}},
		"name":     map[string]any{"type": "string", "description": "Attribute name"},
		"value":    map[string]any{"type": "string", "description": "Attribute value, tag or text"},
		"segments": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": `Path segments, e.g. ["form#login", "> button.primary"]`},
		"anchor":   map[string]any{"type": "object", "description": "Anchor strategy of a relative strategy"},
		"relation": map[string]any{"type": "string", "enum": []any{
			"parent", "child", "next-sibling", "previous-sibling", "ancestor", "descendant",
		}},
		"steps": map[string]any{"type": "integer", "description": "Distance from the anchor"},
	},
	"required": []string{"kind"},
}

var locatorSchema = map[string]any{
	"type":        "object",
	"description": "Element locator",
	"properties": map[string]any{
		"name":       map[string]any{"type": "string"},
		"combinator": map[string]any{"type": "string", "enum": []any{"all-of", "any-of"}},
		"strategies": map[string]any{"type": "array", "items": strategySchema},
	},
	"required": []string{"strategies"},
}
