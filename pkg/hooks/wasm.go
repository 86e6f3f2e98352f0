package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/draky-dev/draky/pkg/config"
)

// WASMLoader loads hooks compiled to WebAssembly.
//
// The module exports memory, malloc(size) -> ptr, free(ptr) and
// alter_service(ptr, len) -> u64. alter_service receives a JSON request
//
//	{"name": "php", "service": {...}, "addon": {"id": "php", "path": "/..."}}
//
// and returns (ptr << 32) | len of a JSON response holding either "service" or "error".
// The host exports env.substitute_variables(ptr, len) -> u64 with the same packing; a
// zero result means the text could not be resolved.
type WASMLoader struct {
	fs               afero.Fs
	memoryLimitPages uint32
}

// NewWASMLoader creates a loader reading hooks from fs.
func NewWASMLoader(fs afero.Fs) *WASMLoader {
	return &WASMLoader{
		fs:               fs,
		memoryLimitPages: 256, // 16MB
	}
}

// Load instantiates the addon's hooks.wasm, if any.
func (l *WASMLoader) Load(ctx context.Context, addon config.Addon) (ServiceMutator, error) {
	path := filepath.Join(addon.Path, WASMHookFile)
	binary, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(l.memoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	m := &wasmMutator{runtime: runtime}

	if _, err := runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(m.substituteVariables).
		Export("substitute_variables").
		Instantiate(ctx); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	module, err := runtime.Instantiate(ctx, binary)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate %s: %w", path, err)
	}

	m.alterService = module.ExportedFunction(alterServiceEntry)
	if m.alterService == nil {
		runtime.Close(ctx)
		return nil, nil
	}

	m.memory = module.Memory()
	m.malloc = module.ExportedFunction("malloc")
	m.free = module.ExportedFunction("free")
	if m.memory == nil || m.malloc == nil || m.free == nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("%s must export memory, malloc and free", path)
	}

	return m, nil
}

type wasmMutator struct {
	runtime      wazero.Runtime
	memory       api.Memory
	malloc       api.Function
	free         api.Function
	alterService api.Function

	// utils serves substitute_variables during a call.
	mu    sync.Mutex
	utils Utils
}

type wasmRequest struct {
	Name    string         `json:"name"`
	Service map[string]any `json:"service"`
	Addon   config.Addon   `json:"addon"`
}

type wasmResponse struct {
	Service map[string]any `json:"service"`
	Error   string         `json:"error"`
}

func (m *wasmMutator) AlterService(
	ctx context.Context,
	name string,
	service map[string]any,
	utils Utils,
	addon config.Addon,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utils = utils

	input, err := json.Marshal(wasmRequest{Name: name, Service: service, Addon: addon})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := m.call(ctx, m.alterService, input)
	if err != nil {
		return fmt.Errorf("%s failed: %w", alterServiceEntry, err)
	}
	if len(output) == 0 {
		return nil
	}

	var resp wasmResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if resp.Service == nil {
		return nil
	}

	for k := range service {
		delete(service, k)
	}
	for k, v := range resp.Service {
		service[k] = normalizeJSON(v)
	}
	return nil
}

// Close releases the runtime.
func (m *wasmMutator) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// call passes input to fn(ptr, len) and reads back the packed (ptr << 32) | len result.
func (m *wasmMutator) call(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	ptr, err := m.write(ctx, input)
	if err != nil {
		return nil, err
	}
	defer m.free.Call(ctx, uint64(ptr))

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("WASM function call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("WASM function returned no results")
	}

	outputPtr, outputLen := unpack(results[0])
	if outputLen == 0 {
		return nil, nil
	}

	output, ok := m.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from WASM memory")
	}
	// Memory may be reused once freed.
	output = append([]byte(nil), output...)
	if outputPtr != ptr {
		_, _ = m.free.Call(ctx, uint64(outputPtr))
	}
	return output, nil
}

// write copies data into memory allocated by the module.
func (m *wasmMutator) write(ctx context.Context, data []byte) (uint32, error) {
	size := uint64(len(data))
	if size == 0 {
		size = 1
	}
	results, err := m.malloc.Call(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}

	ptr := uint32(results[0])
	if !m.memory.Write(ptr, data) {
		return 0, fmt.Errorf("failed to write to WASM memory")
	}
	return ptr, nil
}

// substituteVariables is exported to the module as env.substitute_variables.
func (m *wasmMutator) substituteVariables(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
	text, ok := mod.Memory().Read(ptr, length)
	if !ok || m.utils == nil {
		return 0
	}

	resolved, err := m.utils.SubstituteVariables(string(text))
	if err != nil {
		return 0
	}

	out, err := m.write(ctx, []byte(resolved))
	if err != nil {
		return 0
	}
	return pack(out, uint32(len(resolved)))
}

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(packed uint64) (uint32, uint32) {
	return uint32(packed >> 32), uint32(packed & 0xFFFFFFFF)
}

// normalizeJSON turns JSON numbers that hold integers back into ints.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
		return val
	case []any:
		for i := range val {
			val[i] = normalizeJSON(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalizeJSON(val[k])
		}
		return val
	default:
		return v
	}
}
