package flow

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Shopify/go-lua"
)

// DefaultScriptBudget is the instruction budget of one Script evaluation.
const DefaultScriptBudget = 1 << 20

// scriptHookInterval is how many instructions run between budget and
// context checks.
const scriptHookInterval = 1000

// runScript evaluates a Lua chunk with the node's inputs bound as globals
// and returns the chunk's first return value. Each evaluation gets a fresh
// state holding only the base, string, table and math libraries. The chunk
// is stopped once it runs budget instructions or ctx ends.
func runScript(ctx context.Context, source string, inputs map[string]interface{}, budget int) (interface{}, error) {
	l := newSandbox()

	var stopped error
	if budget > 0 || ctx.Done() != nil {
		used := 0
		lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
			used += scriptHookInterval
			switch {
			case ctx.Err() != nil:
				stopped = ctx.Err()
			case budget > 0 && used > budget:
				stopped = fmt.Errorf("%w: %d instructions", ErrScriptBudget, budget)
			default:
				return
			}
			l.PushString(stopped.Error())
			l.Error()
		}, lua.MaskCount, scriptHookInterval)
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pushValue(l, inputs[name])
		l.SetGlobal(name)
	}

	if err := lua.DoString(l, source); err != nil {
		if stopped != nil {
			return nil, fmt.Errorf("script: %w", stopped)
		}
		return nil, fmt.Errorf("script: %w", err)
	}
	if l.Top() == 0 {
		return nil, nil
	}
	return luaValue(l, 1)
}

// newSandbox opens a state without io, os, package or debug, and with the
// base library's file loaders and error catchers removed.
func newSandbox() *lua.State {
	l := lua.NewState()
	for _, lib := range []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
	} {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "require", "pcall", "xpcall"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	return l
}

func pushValue(l *lua.State, v interface{}) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case int:
		l.PushInteger(x)
	case int64:
		l.PushInteger(int(x))
	case float64:
		l.PushNumber(x)
	case string:
		l.PushString(x)
	default:
		l.PushString(fmt.Sprint(x))
	}
}

// luaValue converts a stack slot back to Go. Whole numbers come back as int
// so scripts compose with the integer-typed ports.
func luaValue(l *lua.State, idx int) (interface{}, error) {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil, nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx), nil
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int(n), nil
		}
		return n, nil
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s, nil
	}
	return nil, fmt.Errorf("script: unsupported return type %s", lua.TypeNameOf(l, idx))
}
