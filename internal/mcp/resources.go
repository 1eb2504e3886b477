package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	sourcesURI       = "hands://sources"
	sourceURIPrefix  = "hands://sources/"
	schemaURI        = "hands://schema"
	resourceMIMEType = "application/json"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// hands://sources: every discovered source and action
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			sourcesURI,
			"Workbook Sources",
			mcp.WithResourceDescription(
				"All sources and actions discovered in the workbook, with their kind, "+
					"schedule and declared tables.",
			),
			mcp.WithMIMEType(resourceMIMEType),
		),
		s.handleSourcesResource,
	)

	// -------------------------------------------------------------------
	// hands://sources/{id}: one full definition (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			sourceURIPrefix+"{id}",
			"Source Definition",
			mcp.WithTemplateDescription(
				"The full definition of one source or action, including its input schema.",
			),
			mcp.WithTemplateMIMEType(resourceMIMEType),
		),
		s.handleSourceResource,
	)

	// -------------------------------------------------------------------
	// hands://schema: the introspected workbook database
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			schemaURI,
			"Workbook Schema",
			mcp.WithResourceDescription(
				"Tables and columns of the workbook database with normalized types.",
			),
			mcp.WithMIMEType(resourceMIMEType),
		),
		s.handleSchemaResource,
	)
}

func (s *MCPServer) handleSourcesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	list := s.registry.List()
	items := make([]sourceInfo, len(list))
	for i, src := range list {
		items[i] = s.summarize(src)
	}
	return jsonResource(sourcesURI, items)
}

func (s *MCPServer) handleSourceResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimPrefix(uri, sourceURIPrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid source URI %q: expected %s{id}", uri, sourceURIPrefix)
	}
	src, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("source %q not found (available: %v)", id, s.registry.IDs())
	}
	return jsonResource(uri, src)
}

func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("no workbook database configured")
	}
	db, err := s.conn.IntrospectSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	return jsonResource(schemaURI, db)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEType,
			Text:     string(b),
		},
	}, nil
}
