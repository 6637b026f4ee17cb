// Package wizard exposes the execution core: a WebAssembly engine for
// x86-64 with an interpreter tier and a single-pass-compiler tier sharing
// one typed value stack per guarded native stack mapping.
//
// The embedder provides functions (Wasm declarations with their decode
// loops, or host callbacks) and runs them:
//
//	eng, err := wizard.NewEngine(wizard.NewConfig())
//	...
//	res, err := eng.Run(f, args)
//
// Module parsing, validation and the compiler's code generator are
// external collaborators; see the internal/wasm package for the runtime
// contracts they plug into.
package wizard

import (
	"github.com/aoli-al/wizard-engine/internal/engine"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// Config selects engine-wide execution parameters. Use NewConfig for the
// defaults and override through the With methods.
type Config struct {
	c engine.Config
}

// NewConfig returns the default configuration: 256 KiB stacks, tag-per-slot
// values, multi-tier dispatch enabled.
func NewConfig() Config {
	return Config{c: engine.DefaultConfig()}
}

// WithStackSize sets the per-stack mapping size, guard pages included.
func (c Config) WithStackSize(size uintptr) Config {
	c.c.StackSize = size
	return c
}

// WithTagged selects or disables the tag-per-slot value representation.
func (c Config) WithTagged(tagged bool) Config {
	c.c.Tagged = tagged
	return c
}

// WithMultiTier enables or disables dispatch through compiled entries.
func (c Config) WithMultiTier(enabled bool) Config {
	c.c.MultiTier = enabled
	return c
}

// Engine executes Wasm and host functions.
type Engine = engine.Engine

// Result is the outcome of one Run: values or a throwable.
type Result = engine.Result

// Value is a single Wasm value.
type Value = value.Value

// NewEngine creates an engine, generating its stack-switch stubs.
func NewEngine(conf Config) (*Engine, error) {
	return engine.New(conf.c)
}

// Convenience re-exports for embedders wiring functions and instances.
type (
	FuncType     = wasm.FuncType
	WasmFunction = wasm.WasmFunction
	HostFunction = wasm.HostFunction
	FuncDecl     = wasm.FuncDecl
	Instance     = wasm.Instance
	Trap         = wasm.Trap
	Throwable    = wasm.Throwable
)
