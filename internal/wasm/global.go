package wasm

import "github.com/aoli-al/wizard-engine/internal/value"

// GlobalInstance holds one global's value. Mutability is enforced at
// validation time; the engine assumes sets only reach mutable globals.
type GlobalInstance struct {
	Type    value.Type
	Mutable bool
	Val     value.Value
}

func NewGlobalInstance(t value.Type, mutable bool, init value.Value) *GlobalInstance {
	return &GlobalInstance{Type: t, Mutable: mutable, Val: init}
}
