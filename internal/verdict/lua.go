package verdict

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/Iron-Ham/consensus/internal/errors"
	"github.com/Iron-Ham/consensus/internal/logging"
)

// DefaultScriptTimeout bounds a single verdict() call.
const DefaultScriptTimeout = time.Second

// LuaExtractor classifies responses with a user-supplied Lua script. The
// script must define a global function verdict(text) returning "APPROVE" or
// "CONCERNS". It may call keyword_verdict(text) to reuse the built-in
// heuristic. When the script errors, times out, or returns anything else,
// the fallback extractor decides.
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries; file loading, printing and randomness are removed.
type LuaExtractor struct {
	proto    *lua.FunctionProto
	fallback Extractor
	timeout  time.Duration
	logger   *logging.Logger
}

// LuaOption configures a LuaExtractor.
type LuaOption func(*LuaExtractor)

// WithFallback sets the extractor used when the script cannot decide.
func WithFallback(e Extractor) LuaOption {
	return func(x *LuaExtractor) {
		if e != nil {
			x.fallback = e
		}
	}
}

// WithScriptTimeout bounds each verdict() call.
func WithScriptTimeout(d time.Duration) LuaOption {
	return func(x *LuaExtractor) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithLogger sets the logger used to report script failures.
func WithLogger(l *logging.Logger) LuaOption {
	return func(x *LuaExtractor) { x.logger = l }
}

// NewLuaExtractor compiles source. Syntax errors are reported here rather
// than at extraction time.
func NewLuaExtractor(name, source string, opts ...LuaOption) (*LuaExtractor, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse verdict script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile verdict script %s: %w", name, err)
	}

	x := &LuaExtractor{
		proto:    proto,
		fallback: KeywordExtractor{},
		timeout:  DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// LoadLuaExtractor reads and compiles the script at path.
func LoadLuaExtractor(path string, opts ...LuaOption) (*LuaExtractor, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read verdict script")
	}
	return NewLuaExtractor(path, string(source), opts...)
}

// Extract implements Extractor. Each call runs in a fresh Lua state, so a
// LuaExtractor is safe for concurrent use.
func (x *LuaExtractor) Extract(text string) Verdict {
	v, err := x.run(text)
	if err != nil {
		x.logger.Warn("verdict script failed, using fallback", "error", err.Error())
		return x.fallback.Extract(text)
	}
	return v
}

func (x *LuaExtractor) run(text string) (Verdict, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
	defer cancel()
	L.SetContext(ctx)

	openSafeLibs(L)
	L.SetGlobal("keyword_verdict", L.NewFunction(x.luaKeywordVerdict))

	L.Push(L.NewFunctionFromProto(x.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return "", fmt.Errorf("failed to load script: %w", err)
	}

	fn := L.GetGlobal("verdict")
	if fn.Type() != lua.LTFunction {
		return "", fmt.Errorf("script must define a 'verdict' function")
	}

	L.Push(fn)
	L.Push(lua.LString(text))
	if err := L.PCall(1, 1, nil); err != nil {
		return "", fmt.Errorf("verdict execution failed: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("verdict returned %s, want string", ret.Type())
	}
	v, ok := Parse(string(s))
	if !ok {
		return "", fmt.Errorf("verdict returned %q", string(s))
	}
	return v, nil
}

// luaKeywordVerdict implements keyword_verdict(text).
func (x *LuaExtractor) luaKeywordVerdict(L *lua.LState) int {
	text := L.CheckString(1)
	L.Push(lua.LString(KeywordExtractor{}.Extract(text)))
	return 1
}

func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}
