package toolbox

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

type tool struct {
	declaration engine.ToolDeclaration
	schema      *gojsonschema.Schema
	function    helpers.Callable
}

// validate checks arguments against the declared input schema and reports
// every violation with its field path.
func (t *tool) validate(arguments map[string]any) error {
	result, err := t.schema.Validate(gojsonschema.NewGoLoader(arguments))
	if err != nil {
		return errors.Wrap(err, "could not validate arguments")
	}
	if result.Valid() {
		return nil
	}
	descriptions := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}
	return errors.Errorf("invalid arguments: %s", strings.Join(descriptions, "; "))
}

// Toolbox maps tool names to Go functions. Each function takes an optional
// context.Context and a single struct argument decoded from the invocation
// arguments; a trailing error return is reported as a failed result.
type Toolbox struct {
	mu        sync.RWMutex
	tools     map[string]*tool
	reflector *jsonschema.Reflector
}

func NewToolbox() *Toolbox {
	return &Toolbox{
		tools: make(map[string]*tool),
		reflector: &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		},
	}
}

// RegisterTool registers function under name, replacing any tool with the
// same name. An empty description falls back to the schema description.
func (tb *Toolbox) RegisterTool(name string, description string, function interface{}) error {
	if reflect.TypeOf(function) == nil || reflect.TypeOf(function).Kind() != reflect.Func {
		return errors.Errorf("tool %s is not a function", name)
	}

	schema, err := helpers.GetFunctionParametersJsonSchema(tb.reflector, function)
	if err != nil {
		return errors.Wrapf(err, "failed to generate schema for tool %s", name)
	}
	declaration, err := engine.NewToolDeclarationFromSchema(name, description, schema)
	if err != nil {
		return err
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(declaration.InputSchema))
	if err != nil {
		return errors.Wrapf(err, "invalid input schema for tool %s", name)
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tools[name] = &tool{declaration: declaration, schema: compiled, function: function}
	log.Debug().Str("tool", name).Msg("registered tool")
	return nil
}

// Declarations returns the tool catalog sorted by name.
func (tb *Toolbox) Declarations() []engine.ToolDeclaration {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	ret := make([]engine.ToolDeclaration, 0, len(tb.tools))
	for _, t := range tb.tools {
		ret = append(ret, t.declaration)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

func (tb *Toolbox) HasTool(name string) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	_, ok := tb.tools[name]
	return ok
}

// ExecuteTool validates arguments against the tool's input schema and calls
// the tool registered under name.
func (tb *Toolbox) ExecuteTool(ctx context.Context, name string, arguments map[string]any) (interface{}, error) {
	tb.mu.RLock()
	t, ok := tb.tools[name]
	tb.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("tool %q not found", name)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	if err := t.validate(arguments); err != nil {
		return nil, errors.Wrapf(err, "failed to execute tool %s", name)
	}

	results, err := helpers.CallFunctionFromJson(ctx, t.function, arguments)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute tool %s", name)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0].Interface(), nil
	default:
		values := make([]interface{}, 0, len(results))
		for _, r := range results {
			values = append(values, r.Interface())
		}
		return values, nil
	}
}

// Execute runs an invocation and wraps the outcome as a ToolResult. Failures
// become an {"error": ...} payload so the model can see them.
func (tb *Toolbox) Execute(ctx context.Context, invocation conversation.ToolInvocation) conversation.ToolResult {
	value, err := tb.ExecuteTool(ctx, invocation.Name, invocation.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", invocation.Name).Str("id", invocation.ID).Msg("tool execution failed")
		return conversation.ToolResult{
			InvocationID: invocation.ID,
			Payload:      map[string]any{"error": err.Error()},
		}
	}
	return conversation.ToolResult{InvocationID: invocation.ID, Payload: value}
}
