package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/draky-dev/draky/pkg/config"
)

// Hook file names, looked up in the addon directory.
const (
	StarlarkHookFile = "hooks.star"
	WASMHookFile     = "hooks.wasm"

	// alterServiceEntry is the entry point both hook flavors export.
	alterServiceEntry = "alter_service"
)

// StarlarkLoader loads hooks written in Starlark.
//
// A hook defines:
//
//	def alter_service(name, service, utils, addon):
//	    service["labels"] = {"addon": addon.id}
//
// service is a dict that may be changed in place; returning a dict replaces it instead.
// utils.substitute_variables(text) resolves variable references. addon has id and path.
type StarlarkLoader struct {
	fs afero.Fs
}

// NewStarlarkLoader creates a loader reading hooks from fs.
func NewStarlarkLoader(fs afero.Fs) *StarlarkLoader {
	return &StarlarkLoader{fs: fs}
}

// Load executes the addon's hooks.star, if any, and binds its alter_service function.
func (l *StarlarkLoader) Load(ctx context.Context, addon config.Addon) (ServiceMutator, error) {
	path := filepath.Join(addon.Path, StarlarkHookFile)
	script, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	thread := newThread(addon.ID)
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}

	var globals starlark.StringDict
	err = runWithContext(ctx, thread, func() error {
		var execErr error
		globals, execErr = starlark.ExecFile(thread, path, script, predeclared)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	fn, ok := globals[alterServiceEntry].(starlark.Callable)
	if !ok {
		return nil, nil
	}
	return &starlarkMutator{fn: fn}, nil
}

type starlarkMutator struct {
	fn starlark.Callable
}

func (m *starlarkMutator) AlterService(
	ctx context.Context,
	name string,
	service map[string]any,
	utils Utils,
	addon config.Addon,
) error {
	dict, err := toStarlarkValue(service)
	if err != nil {
		return fmt.Errorf("failed to convert service %s: %w", name, err)
	}

	args := starlark.Tuple{
		starlark.String(name),
		dict,
		newStarlarkUtils(utils),
		starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"id":   starlark.String(addon.ID),
			"path": starlark.String(addon.Path),
		}),
	}

	thread := newThread(addon.ID)
	var result starlark.Value
	err = runWithContext(ctx, thread, func() error {
		var callErr error
		result, callErr = starlark.Call(thread, m.fn, args, nil)
		return callErr
	})
	if err != nil {
		return err
	}

	altered := dict
	if returned, ok := result.(*starlark.Dict); ok {
		altered = returned
	}

	goVal, err := fromStarlarkValue(altered)
	if err != nil {
		return fmt.Errorf("failed to convert altered service %s: %w", name, err)
	}
	replacement, _ := goVal.(map[string]any)

	for k := range service {
		delete(service, k)
	}
	for k, v := range replacement {
		service[k] = v
	}
	return nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Hooks have no output channel.
		},
	}
}

// runWithContext runs fn and cancels the thread when ctx is done.
func runWithContext(ctx context.Context, thread *starlark.Thread, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		thread.Cancel(ctx.Err().Error())
		<-done
		return fmt.Errorf("starlark execution interrupted: %w", ctx.Err())
	}
}

func newStarlarkUtils(utils Utils) starlark.Value {
	substitute := starlark.NewBuiltin("substitute_variables",
		func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var text string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
				return nil, err
			}
			if utils == nil {
				return starlark.String(text), nil
			}
			resolved, err := utils.SubstituteVariables(text)
			if err != nil {
				return nil, err
			}
			return starlark.String(resolved), nil
		})

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"substitute_variables": substitute,
	})
}

// toStarlarkValue converts a decoded YAML value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for _, k := range sortedKeys(val) {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back to the shapes YAML decoding produces.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return int(i), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, elem := range val {
			item, err := fromStarlarkValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
