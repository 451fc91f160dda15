package condition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFieldNotFound is returned when an expression reads a path the
// context cannot resolve.
var ErrFieldNotFound = errors.New("field not found")

// EvalContext provides data for expression evaluation.
type EvalContext interface {
	Resolve(path []string) (interface{}, bool)
}

// Vars is an EvalContext over a plain map; nested maps are walked by path.
type Vars map[string]interface{}

func (v Vars) Resolve(path []string) (interface{}, bool) {
	return ResolveMap(v, path)
}

// ResolveMap walks path into nested string-keyed maps.
func ResolveMap(m map[string]interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return ResolveMap(sub, path[1:])
}

// Evaluate walks the AST and returns true/false or an error.
func Evaluate(expr Expr, ctx EvalContext) (bool, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		return evalBinary(e, ctx)
	case *NotExpr:
		v, err := Evaluate(e.Expr, ctx)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *ComparisonExpr:
		return evalComparison(e, ctx)
	case *TruthExpr:
		v, err := Value(e.Operand, ctx)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	default:
		return false, fmt.Errorf("unknown expr type %T", expr)
	}
}

func evalBinary(e *BinaryExpr, ctx EvalContext) (bool, error) {
	left, err := Evaluate(e.Left, ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(e.Op) {
	case "AND":
		if !left {
			return false, nil // short-circuit
		}
		return Evaluate(e.Right, ctx)
	case "OR":
		if left {
			return true, nil // short-circuit
		}
		return Evaluate(e.Right, ctx)
	default:
		return false, fmt.Errorf("unknown binary op %q", e.Op)
	}
}

func evalComparison(e *ComparisonExpr, ctx EvalContext) (bool, error) {
	left, err := Value(e.Left, ctx)
	if err != nil {
		return false, err
	}
	right, err := Value(e.Right, ctx)
	if err != nil {
		return false, err
	}
	return Compare(e.Op, left, right)
}

// Value resolves an operand. Arithmetic stays integral while both sides are
// integers; any float operand promotes the result to float64.
func Value(op Operand, ctx EvalContext) (interface{}, error) {
	switch o := op.(type) {
	case *LiteralOperand:
		return o.Value, nil
	case *FieldOperand:
		val, ok := ctx.Resolve(o.Path)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, strings.Join(o.Path, "."))
		}
		return val, nil
	case *ArithOperand:
		left, err := Value(o.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := Value(o.Right, ctx)
		if err != nil {
			return nil, err
		}
		return arith(o.Op, left, right)
	default:
		return nil, fmt.Errorf("unknown operand type %T", op)
	}
}

func arith(op string, left, right interface{}) (interface{}, error) {
	li, lint := ToInt(left)
	ri, rint := ToInt(right)
	if lint && rint {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		}
		return nil, fmt.Errorf("unsupported arithmetic operator %q", op)
	}
	lf, lok := ToFloat64(left)
	rf, rok := ToFloat64(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unsupported arithmetic operator %q", op)
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	return true
}
