package policy

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"
)

// EvaluateAvailability evaluates a provider availability rule against the
// request context. An empty rule is an error: callers that want a fixed
// outcome pass the explicit flag instead. Supports "true"/"false" literals.
func EvaluateAvailability(rule string, params map[string]interface{}) (bool, error) {
	expr := strings.TrimSpace(rule)
	if expr == "" {
		return false, errors.New("availability rule is empty")
	}
	switch strings.ToLower(expr) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, err
	}
	result, err := parsed.Evaluate(flatten(params))
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("availability rule did not evaluate to boolean")
	}
	return v, nil
}

func flatten(params map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range params {
		out[k] = v
	}
	flattenInto("", params, out)
	return out
}

func flattenInto(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flattenInto(key, vv, out)
		default:
			out[key] = vv
		}
	}
}
