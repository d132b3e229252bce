// Package lua runs framework strategies written as Lua scripts.
package lua

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mpataki/padeploy/internal/classify"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

const entrypoint = "run_commands"

// Script is a framework defined by a Lua file.
type Script struct {
	Name   string
	Path   string
	source string
}

// Load reads and syntax-checks a script. The framework name is the file name
// without its extension.
func Load(scriptPath string) (*Script, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read script")
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	if _, err := L.LoadString(string(src)); err != nil {
		return nil, errors.Wrapf(err, "failed to load script %s", scriptPath)
	}

	base := filepath.Base(scriptPath)
	return &Script{
		Name:   strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base))),
		Path:   scriptPath,
		source: string(src),
	}, nil
}

func (s *Script) Strategy() framework.Constructor {
	return func(env framework.Env) framework.Strategy {
		return framework.StrategyFunc(func(ctx context.Context, session models.Console, app models.WebApp) error {
			r := &runtime{ctx: ctx, env: env, session: session}
			return r.execute(s, app)
		})
	}
}

// runtime is the state of one script execution.
type runtime struct {
	ctx     context.Context
	env     framework.Env
	session models.Console

	// err is set when a Go callback fails, so the original error is returned
	// rather than its Lua rendering.
	err     error
	failure string
	failed  bool
}

func (r *runtime) execute(s *Script, app models.WebApp) error {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()
	L.SetContext(r.ctx)

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(s.source); err != nil {
		return errors.Wrap(err, "failed to load script")
	}

	fn := L.GetGlobal(entrypoint)
	if fn.Type() != lua.LTFunction {
		return errors.Errorf("script must define a '%s' function", entrypoint)
	}

	L.Push(fn)
	L.Push(r.appTable(L, app))
	if err := L.PCall(1, 0, nil); err != nil {
		switch {
		case r.failed:
			return errors.New(r.failure)
		case r.err != nil:
			return r.err
		}
		if apiErr, ok := err.(*lua.ApiError); ok {
			return errors.New(apiErr.Object.String())
		}
		return err
	}
	return nil
}

// openSafeLibs loads only the safe standard libraries
func (r *runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use info() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("send", L.NewFunction(r.luaSend))
	L.SetGlobal("output", L.NewFunction(r.luaOutput))
	L.SetGlobal("tool_path", L.NewFunction(luaToolPath))
	L.SetGlobal("contains", L.NewFunction(luaContains))
	L.SetGlobal("dirname", L.NewFunction(luaDirname))
	L.SetGlobal("info", L.NewFunction(r.luaInfo))
	L.SetGlobal("fail", L.NewFunction(r.luaFail))
}

func (r *runtime) appTable(L *lua.LState, app models.WebApp) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "domain_name", lua.LString(app.DomainName))
	L.SetField(tbl, "source_directory", lua.LString(app.SourceDirectory))
	L.SetField(tbl, "virtualenv_path", lua.LString(app.VirtualenvPath))
	L.SetField(tbl, "settings", lua.LString(r.env.Options.Settings))
	L.SetField(tbl, "console_id", lua.LString(r.session.ID.String()))
	return tbl
}

// luaSend implements send(command, label?)
func (r *runtime) luaSend(L *lua.LState) int {
	command := L.CheckString(1)
	label := L.OptString(2, "Command sent.")

	if err := r.env.Console.Send(r.ctx, r.session.ID, command, label); err != nil {
		r.err = err
		L.RaiseError("send failed: %v", err)
	}
	return 0
}

// luaOutput implements output(label?) -> string
func (r *runtime) luaOutput(L *lua.LState) int {
	label := L.OptString(1, "Console output fetched.")

	snap, err := r.env.Console.LatestOutput(r.ctx, r.session.ID, label)
	if err != nil {
		r.err = err
		L.RaiseError("output failed: %v", err)
		return 0
	}
	L.Push(lua.LString(snap.Output))
	return 1
}

// luaToolPath implements tool_path(output, filename) -> path|nil
func luaToolPath(L *lua.LState) int {
	presence := classify.Tool(L.CheckString(1), L.CheckString(2))
	if !presence.Present {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(presence.Path))
	return 1
}

func luaContains(L *lua.LState) int {
	L.Push(lua.LBool(classify.Contains(L.CheckString(1), L.CheckString(2))))
	return 1
}

func luaDirname(L *lua.LState) int {
	L.Push(lua.LString(path.Dir(L.CheckString(1))))
	return 1
}

func (r *runtime) luaInfo(L *lua.LState) int {
	r.env.Log.Info(L.CheckString(1))
	return 0
}

// luaFail implements fail(message), which stops the script
func (r *runtime) luaFail(L *lua.LState) int {
	r.failure = L.OptString(1, "script failed")
	r.failed = true
	L.RaiseError("fail: %s", r.failure)
	return 0
}

// IsScript reports whether a file is a Lua framework script
func IsScript(p string) bool {
	return filepath.Ext(p) == ".lua"
}
