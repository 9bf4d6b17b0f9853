package helpers

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Callable is any func that takes an optional leading context.Context
// followed by a single JSON-decodable argument.
type Callable interface{}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// argumentType returns the type of the JSON argument of f, or nil if f takes
// none. hasContext reports a leading context.Context parameter.
func argumentType(f Callable) (argType reflect.Type, hasContext bool, err error) {
	funcType := reflect.TypeOf(f)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, false, errors.Errorf("provided callable is not a function")
	}

	offset := 0
	if funcType.NumIn() > 0 && funcType.In(0).Implements(contextType) {
		hasContext = true
		offset = 1
	}
	switch funcType.NumIn() - offset {
	case 0:
		return nil, hasContext, nil
	case 1:
		return funcType.In(offset), hasContext, nil
	default:
		return nil, false, errors.Errorf("callable takes %d arguments, expected at most one", funcType.NumIn()-offset)
	}
}

// CallFunctionFromJson decodes jsonArgs into the argument of f and calls it.
// A trailing error return value is split off and returned as err.
func CallFunctionFromJson(ctx context.Context, f Callable, jsonArgs interface{}) ([]reflect.Value, error) {
	argType, hasContext, err := argumentType(f)
	if err != nil {
		return nil, err
	}

	var args []reflect.Value
	if hasContext {
		args = append(args, reflect.ValueOf(ctx))
	}
	if argType != nil {
		argsJson, err := json.Marshal(jsonArgs)
		if err != nil {
			return nil, errors.Wrap(err, "could not marshal arguments")
		}
		argPtr := reflect.New(argType)
		if err := json.Unmarshal(argsJson, argPtr.Interface()); err != nil {
			return nil, errors.Wrapf(err, "could not decode arguments into %s", argType)
		}
		args = append(args, argPtr.Elem())
	}

	results := reflect.ValueOf(f).Call(args)
	if n := len(results); n > 0 && reflect.TypeOf(f).Out(n-1) == errorType {
		errValue := results[n-1]
		results = results[:n-1]
		if !errValue.IsNil() {
			return results, errValue.Interface().(error)
		}
	}
	return results, nil
}

// GetFunctionParametersJsonSchema reflects the argument of f into a JSON
// schema. Functions without an argument get an empty object schema.
func GetFunctionParametersJsonSchema(reflector *jsonschema.Reflector, f Callable) (*jsonschema.Schema, error) {
	argType, _, err := argumentType(f)
	if err != nil {
		return nil, err
	}
	if argType == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	return reflector.ReflectFromType(argType), nil
}
