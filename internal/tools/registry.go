// Package tools holds the functions the model may call during a turn.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	ErrToolNotFound       = errors.New("tool not found")
	ErrMalformedArguments = errors.New("malformed tool arguments")
	ErrInvalidArguments   = errors.New("invalid tool arguments")
)

type Tool interface {
	Name() string
	Description() string
	Parameters() jsonschema.Definition
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the fixed set of tools offered with every completion request.
type Registry struct {
	tools []Tool
	index map[string]Tool
}

// NewRegistry validates the tools up front so a bad manifest fails at startup.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make([]Tool, 0, len(tools)),
		index: make(map[string]Tool, len(tools)),
	}
	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("tool #%d is nil", i)
		}
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool #%d: function name cannot be empty", i)
		}
		if _, ok := r.index[name]; ok {
			return nil, fmt.Errorf("tool %q is registered twice", name)
		}
		params := t.Parameters()
		if params.Type != jsonschema.Object {
			return nil, fmt.Errorf("tool %q: parameters must be an object schema", name)
		}
		for _, required := range params.Required {
			if _, ok := params.Properties[required]; !ok {
				return nil, fmt.Errorf("tool %q: required parameter %q is not declared", name, required)
			}
		}
		r.index[name] = t
		r.tools = append(r.tools, t)
	}
	return r, nil
}

func (r *Registry) Descriptors() []model.ToolDescriptor {
	descriptors := make([]model.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		descriptors = append(
			descriptors, model.ToolDescriptor{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		)
	}
	return descriptors
}

// Invoke parses the raw argument text and dispatches it to the named tool.
func (r *Registry) Invoke(ctx context.Context, name, args string) (string, error) {
	t, ok := r.index[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	var parsedArgs map[string]any
	if err := json.Unmarshal([]byte(args), &parsedArgs); err != nil {
		return "", fmt.Errorf("%w for %q: %v", ErrMalformedArguments, name, err)
	}
	if parsedArgs == nil {
		return "", fmt.Errorf("%w for %q: expected a JSON object", ErrMalformedArguments, name)
	}
	if err := validateArguments(t.Parameters(), parsedArgs); err != nil {
		return "", fmt.Errorf("%w for %q: %v", ErrInvalidArguments, name, err)
	}

	slog.DebugContext(ctx, "Invoking tool", "name", name, "args", args)
	return t.Invoke(ctx, parsedArgs)
}

func validateArguments(schema jsonschema.Definition, args map[string]any) error {
	for _, param := range schema.Required {
		if _, ok := args[param]; !ok {
			return fmt.Errorf("missing required parameter %q", param)
		}
	}
	for param, value := range args {
		def, ok := schema.Properties[param]
		if !ok {
			continue
		}
		if !isValidType(value, def.Type) {
			return fmt.Errorf("parameter %q has invalid type: expected %q, got %T", param, def.Type, value)
		}
	}
	return nil
}

func isValidType(value any, expected jsonschema.DataType) bool {
	switch expected {
	case jsonschema.String:
		_, ok := value.(string)
		return ok
	case jsonschema.Number:
		_, ok := value.(float64)
		return ok
	case jsonschema.Integer:
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case jsonschema.Boolean:
		_, ok := value.(bool)
		return ok
	case jsonschema.Array:
		_, ok := value.([]any)
		return ok
	case jsonschema.Object:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
