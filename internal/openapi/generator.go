package openapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/source"
)

const apiPrefix = "/api/v1"

// Generate builds the OpenAPI 3.1 document for the Hands API. Every source
// with an input schema gets its own sync path whose request body is that
// schema; every declared table becomes a component schema named after its
// source.
func Generate(baseURL string, sources []*source.Source) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Hands API",
			Description: "Run workbook sources and actions, inspect the workbook schema and browse run history.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()

	addSharedSchemas(doc)
	addStaticPaths(doc)

	for _, src := range sources {
		addSourceSchemas(doc, src)
		if len(src.Definition.Input) > 0 {
			addSourceSyncPath(doc, src)
		}
	}

	return doc
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: items,
		},
	}
}

func prim(typ, format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: columnTypeSchema(TypeMapping{Type: typ, Format: format})}
}

func stringArray() *openapi3.SchemaRef {
	return arrayOf(prim("string", ""))
}

// ─── Shared Components ──────────────────────────────────────────────────────

func addSharedSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas

	s["ErrorResponse"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    prim("integer", "int32"),
			"message": prim("string", ""),
			"context": prim("object", ""),
		}),
	}, "error")

	s["LogEntry"] = objectSchema(openapi3.Schemas{
		"timestamp": prim("string", "date-time"),
		"level":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []interface{}{"debug", "info", "warn", "error"}}},
		"message":   prim("string", ""),
	})

	s["SyncResult"] = objectSchema(openapi3.Schemas{
		"success":     prim("boolean", ""),
		"result":      {Value: &openapi3.Schema{Description: "Handler result; present only on success."}},
		"error":       prim("string", ""),
		"duration_ms": prim("integer", "int64"),
		"logs":        arrayOf(ref("LogEntry")),
	}, "success", "duration_ms", "logs")

	s["ActionRun"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			AllOf: openapi3.SchemaRefs{
				ref("SyncResult"),
				objectSchema(openapi3.Schemas{
					"id":         prim("integer", "int64"),
					"run_id":     prim("string", "uuid"),
					"action_id":  prim("string", ""),
					"trigger":    {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []interface{}{model.TriggerSchedule, model.TriggerManual, model.TriggerCLI, model.TriggerMCP}}},
					"started_at": prim("string", "date-time"),
				}),
			},
		},
	}

	s["RunStats"] = objectSchema(openapi3.Schemas{
		"action_id":       prim("string", ""),
		"count":           prim("integer", "int64"),
		"success_count":   prim("integer", "int64"),
		"success_rate":    prim("number", "double"),
		"avg_duration_ms": prim("number", "double"),
		"last_run":        ref("ActionRun"),
	})

	s["ValidationResult"] = objectSchema(openapi3.Schemas{
		"valid":          prim("boolean", ""),
		"missing_tables": stringArray(),
		"missing_columns": arrayOf(objectSchema(openapi3.Schemas{
			"table":  prim("string", ""),
			"column": prim("string", ""),
		})),
		"errors": stringArray(),
	}, "valid", "missing_tables", "missing_columns", "errors")

	columnTypes := make([]interface{}, 0, len(columnTypeToOpenAPI))
	for _, t := range []model.ColumnType{
		model.TypeText, model.TypeInteger, model.TypeReal, model.TypeNumeric, model.TypeBoolean,
		model.TypeTimestamp, model.TypeDate, model.TypeJSON, model.TypeUUID, model.TypeBlob,
	} {
		columnTypes = append(columnTypes, string(t))
	}
	s["Column"] = objectSchema(openapi3.Schemas{
		"name":           prim("string", ""),
		"position":       prim("integer", "int32"),
		"type":           {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: columnTypes}},
		"db_type":        prim("string", ""),
		"nullable":       prim("boolean", ""),
		"default":        prim("string", ""),
		"is_primary_key": prim("boolean", ""),
	})
	s["Table"] = objectSchema(openapi3.Schemas{
		"name":    prim("string", ""),
		"columns": arrayOf(ref("Column")),
	})
	s["DbSchema"] = objectSchema(openapi3.Schemas{
		"tables": arrayOf(ref("Table")),
	})
	s["ColumnRow"] = objectSchema(openapi3.Schemas{
		"table_name":     prim("string", ""),
		"column_name":    prim("string", ""),
		"data_type":      prim("string", ""),
		"is_nullable":    prim("string", ""),
		"column_default": prim("string", ""),
		"is_primary_key": prim("boolean", ""),
	})

	s["SourceSummary"] = objectSchema(openapi3.Schemas{
		"id":          prim("string", ""),
		"type":        {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []interface{}{string(source.TypeSource), string(source.TypeAction)}}},
		"name":        prim("string", ""),
		"description": prim("string", ""),
		"kind":        prim("string", ""),
		"schedule":    prim("string", ""),
		"secrets":     stringArray(),
		"has_schema":  prim("boolean", ""),
		"running":     prim("boolean", ""),
		"next_run":    prim("string", "date-time"),
	})
	s["SchedulerStatus"] = objectSchema(openapi3.Schemas{
		"running":   prim("boolean", ""),
		"next_runs": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}, AdditionalProperties: openapi3.AdditionalProperties{Schema: prim("string", "date-time")}}},
		"in_flight": stringArray(),
		"last_tick": prim("string", "date-time"),
	})
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func idParam(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter(name).
			WithDescription(description).
			WithSchema(openapi3.NewStringSchema()),
	}
}

func queryParam(name, description string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter(name).
			WithDescription(description).
			WithSchema(schema),
	}
}

func operation(tag, id, summary string, params openapi3.Parameters, body *openapi3.RequestBodyRef, status string, result *openapi3.SchemaRef) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		Parameters:  params,
		RequestBody: body,
		Responses:   newResponses(status, summary, result),
	}
}

func jsonBody(description string, required bool, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    required,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func syncBody(input *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return jsonBody("Optional manual-trigger input.", false, objectSchema(openapi3.Schemas{
		"input": input,
	}))
}

func addStaticPaths(doc *openapi3.T) {
	srcID := openapi3.Parameters{idParam("id", "Source or action id.")}

	sourceList := objectSchema(openapi3.Schemas{
		"resource": arrayOf(ref("SourceSummary")),
		"errors": arrayOf(objectSchema(openapi3.Schemas{
			"file":  prim("string", ""),
			"error": prim("string", ""),
		})),
		"loaded_at": prim("string", "date-time"),
	})
	doc.Paths.Set(apiPrefix+"/sources", &openapi3.PathItem{
		Get: operation("sources", "list_sources", "List sources and actions", nil, nil, "200", sourceList),
	})
	doc.Paths.Set(apiPrefix+"/sources/_reload", &openapi3.PathItem{
		Post: operation("sources", "reload_sources", "Rescan the workbook", nil, nil, "200", sourceList),
	})
	doc.Paths.Set(apiPrefix+"/sources/{id}", &openapi3.PathItem{
		Get: operation("sources", "get_source", "Get a source definition", srcID, nil, "200", ref("SourceSummary")),
	})

	sync := operation("sources", "sync_source", "Run a source and wait for its result", srcID,
		syncBody(prim("object", "")), "200", ref("SyncResult"))
	addConflict(sync)
	doc.Paths.Set(apiPrefix+"/sources/{id}/sync", &openapi3.PathItem{Post: sync})

	doc.Paths.Set(apiPrefix+"/sources/{id}/validate", &openapi3.PathItem{
		Post: operation("sources", "validate_source", "Check the required schema against the workbook", srcID, nil, "200", ref("ValidationResult")),
	})
	doc.Paths.Set(apiPrefix+"/sources/{id}/ddl", &openapi3.PathItem{
		Get: operation("sources", "source_ddl", "CREATE TABLE statements for the required schema",
			append(openapi3.Parameters{}, srcID[0], queryParam("missing", "Only statements the workbook still needs.", openapi3.NewBoolSchema())),
			nil, "200", objectSchema(openapi3.Schemas{
				"id":         prim("string", ""),
				"dialect":    prim("string", ""),
				"statements": stringArray(),
			})),
	})

	doc.Paths.Set(apiPrefix+"/schema", &openapi3.PathItem{
		Get: operation("schema", "get_schema", "Normalized workbook schema", nil, nil, "200", ref("DbSchema")),
	})
	doc.Paths.Set(apiPrefix+"/schema/{table}", &openapi3.PathItem{
		Get: operation("schema", "get_table", "Normalized schema of one table",
			openapi3.Parameters{idParam("table", "Table name.")}, nil, "200", ref("Table")),
	})
	doc.Paths.Set(apiPrefix+"/postgres/schema", &openapi3.PathItem{
		Get: operation("schema", "get_raw_schema", "Raw introspection rows", nil, nil, "200", arrayOf(ref("ColumnRow"))),
	})

	doc.Paths.Set(apiPrefix+"/runs", &openapi3.PathItem{
		Get: operation("runs", "list_runs", "List runs newest first", openapi3.Parameters{
			queryParam("action_id", "Only runs of this source or action.", openapi3.NewStringSchema()),
			queryParam("since", "RFC 3339 timestamp or Unix milliseconds.", openapi3.NewStringSchema()),
			queryParam("limit", "Maximum runs to return (1-1000).", openapi3.NewInt32Schema()),
		}, nil, "200", objectSchema(openapi3.Schemas{
			"resource": arrayOf(ref("ActionRun")),
			"meta":     metaSchema(),
		})),
	})
	doc.Paths.Set(apiPrefix+"/runs/{runId}", &openapi3.PathItem{
		Get: operation("runs", "get_run", "Get a run by run_id or id",
			openapi3.Parameters{idParam("runId", "Run id.")}, nil, "200", ref("ActionRun")),
	})
	doc.Paths.Set(apiPrefix+"/runs/stats/{actionId}", &openapi3.PathItem{
		Get: operation("runs", "run_stats", "Aggregate run history of one action",
			openapi3.Parameters{idParam("actionId", "Source or action id.")}, nil, "200", ref("RunStats")),
	})
	doc.Paths.Set(apiPrefix+"/runs/_cleanup", &openapi3.PathItem{
		Post: operation("runs", "cleanup_runs", "Delete runs outside the retention policy", nil,
			jsonBody("Overrides of the configured retention.", false, objectSchema(openapi3.Schemas{
				"max_age":   prim("string", ""),
				"max_count": prim("integer", "int32"),
				"action_id": prim("string", ""),
			})), "200", objectSchema(openapi3.Schemas{
				"deleted":   prim("integer", "int64"),
				"retention": prim("object", ""),
			})),
	})

	doc.Paths.Set(apiPrefix+"/scheduler", &openapi3.PathItem{
		Get: operation("system", "scheduler_status", "Scheduler state", nil, nil, "200", ref("SchedulerStatus")),
	})
}

func addConflict(op *openapi3.Operation) {
	desc := "A run of this source is already in flight"
	op.Responses.Set("409", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	})
}

// addSourceSyncPath documents the sync endpoint of one source with its own
// input schema as the request body.
func addSourceSyncPath(doc *openapi3.T, src *source.Source) {
	input := inputSchema(src.Definition.Input)
	name := src.Definition.Name
	if name == "" {
		name = src.ID
	}
	op := operation("sources", "sync_"+sanitizeSchemaName(src.ID, ""),
		fmt.Sprintf("Run %s", name), nil, syncBody(input), "200", ref("SyncResult"))
	op.Description = src.Definition.Description
	addConflict(op)
	doc.Paths.Set(fmt.Sprintf("%s/sources/%s/sync", apiPrefix, src.ID), &openapi3.PathItem{Post: op})
}

// inputSchema converts a definition's JSON schema into an OpenAPI schema.
// Schemas kin-openapi cannot decode are documented as free-form objects.
func inputSchema(raw map[string]interface{}) *openapi3.SchemaRef {
	data, err := json.Marshal(raw)
	if err != nil {
		return prim("object", "")
	}
	var s openapi3.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return prim("object", "")
	}
	return &openapi3.SchemaRef{Value: &s}
}

// addSourceSchemas adds one component schema per table a source declares.
func addSourceSchemas(doc *openapi3.T, src *source.Source) {
	for _, t := range src.Definition.Schema.Tables {
		props := openapi3.Schemas{}
		var required []string
		for _, c := range t.Columns {
			cs := columnTypeSchema(MapColumnType(c.Type))
			props[c.Name] = &openapi3.SchemaRef{Value: cs}
			if c.NotNull {
				required = append(required, c.Name)
			}
		}
		sr := objectSchema(props, required...)
		sr.Value.Description = fmt.Sprintf("Row of %s written by %s.", t.Name, src.ID)
		doc.Components.Schemas[sanitizeSchemaName(src.ID, t.Name)] = sr
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"404", "Not found"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of records returned.",
					},
				},
				"limit": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Maximum records requested.",
					},
				},
				"took_ms": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"number"},
						Format:      "double",
						Description: "Server-side time spent.",
					},
				},
			},
		},
	}
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// sanitizeSchemaName creates a valid OpenAPI component name from a source id
// and table name.
func sanitizeSchemaName(sourceID, tableName string) string {
	s := capitalize(sourceID)
	if tableName != "" {
		s += "_" + capitalize(tableName)
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
