package plan

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// Translator turns an expression into the JSON plan a ply backend accepts.
type Translator struct{}

func (Translator) Translate(ex expr.Expression) (any, error) {
	b, err := MarshalExpression(ex)
	if err != nil {
		return nil, err
	}
	return jsoniter.RawMessage(b), nil
}

// Adapter turns a backend's raw answer back into a value. It accepts the
// JSON produced by MarshalValue as bytes or a string, and values as is.
type Adapter struct{}

func (Adapter) Adapt(raw any) (value.Value, error) {
	switch r := raw.(type) {
	case value.Value:
		return r, nil
	case jsoniter.RawMessage:
		return UnmarshalValue(r)
	case []byte:
		return UnmarshalValue(r)
	case string:
		return UnmarshalValue([]byte(r))
	case nil:
		return value.Null(), errors.New("empty response")
	}
	return value.Null(), errors.Errorf("cannot adapt response of type %T", raw)
}
