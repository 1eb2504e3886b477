// Package source discovers source and action definitions in the workbook,
// builds their run handlers, and keeps them in a registry that can be
// rescanned at any time.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
	"github.com/handsdb/hands/internal/task"
)

// Type distinguishes data sources from actions. Both run the same way.
type Type string

const (
	TypeSource Type = "source"
	TypeAction Type = "action"
)

// Definition is the decoded content of a definition file.
type Definition struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description,omitempty"`
	Kind        string                 `yaml:"kind" json:"kind" validate:"required"`
	Schedule    string                 `yaml:"schedule" json:"schedule,omitempty"`
	Secrets     []string               `yaml:"secrets" json:"secrets,omitempty" validate:"dive,required"`
	Timeout     time.Duration          `yaml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
	Provision   *bool                  `yaml:"provision" json:"provision,omitempty"`
	Schema      model.ActionSchema     `yaml:"schema" json:"schema"`
	Input       map[string]interface{} `yaml:"input" json:"input,omitempty"`
	Config      map[string]interface{} `yaml:"config" json:"config,omitempty"`
}

// Source is a discovered, loaded definition with its handler.
type Source struct {
	ID         string       `json:"id"`
	Type       Type         `json:"type"`
	Path       string       `json:"path"`
	Definition Definition   `json:"definition"`
	Handler    task.Handler `json:"-"`
	input      *gojsonschema.Schema
}

// HasSchema reports whether the definition declares required tables.
func (s *Source) HasSchema() bool {
	return !s.Definition.Schema.IsEmpty()
}

// ValidateInput checks a manual-trigger input against the definition's
// input JSON schema. Definitions without one accept any input.
func (s *Source) ValidateInput(input map[string]interface{}) error {
	if s.input == nil {
		return nil
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	result, err := s.input.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("validate input: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("invalid input: %s", strings.Join(errs, "; "))
	}
	return nil
}

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// validate is shared; validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return schema.ValidateIdentifier(fl.Field().String()) == nil
	})
	return v
}

// ParseDefinition decodes and validates a definition file. YAML and JSON
// are both accepted. checkSchedule, when non-nil, validates the schedule.
func ParseDefinition(data []byte, checkSchedule func(string) error) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	for i := range def.Schema.Tables {
		for j := range def.Schema.Tables[i].Columns {
			col := &def.Schema.Tables[i].Columns[j]
			col.Type = schema.ParseColumnType(string(col.Type))
		}
	}

	if err := validate.Struct(&def); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", describeValidation(err))
	}
	if def.Schedule != "" && checkSchedule != nil {
		if err := checkSchedule(def.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", def.Schedule, err)
		}
	}
	return &def, nil
}

// describeValidation flattens validator errors into one readable line.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Definition.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "sqlident":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a valid identifier", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Build turns a parsed definition into a Source with its handler.
func Build(id string, typ Type, path string, def *Definition, kinds *task.Registry) (*Source, error) {
	if !idRegex.MatchString(id) {
		return nil, fmt.Errorf("invalid id %q: must match %s", id, idRegex.String())
	}

	src := &Source{ID: id, Type: typ, Path: path, Definition: *def}
	if src.Definition.Name == "" {
		src.Definition.Name = id
	}

	if len(def.Input) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Input))
		if err != nil {
			return nil, fmt.Errorf("invalid input schema: %w", err)
		}
		src.input = compiled
	}

	h, err := kinds.Build(def.Kind, def.Config)
	if err != nil {
		return nil, err
	}
	src.Handler = h
	return src, nil
}
