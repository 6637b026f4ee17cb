package engine

import (
	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// TierUp is the on-stack-replacement gate. The interpreter calls it at
// loop back-edges; the tiering policy decides whether compiled code exists
// for (fn, pc). On a hit, the pending return address of the interpreter
// frame is overwritten in place with the compiled entry plus the matching
// offset, so the interpreter's next ret lands in compiled code with the
// same register-free Wasm state the OSR point was emitted to accept.
// On a miss this is a no-op and execution continues in the interpreter.
func (c *execContext) TierUp(fn *wasm.WasmFunction, pc uint32) {
	if c.e.policy == nil {
		return
	}
	// The interpreter frame immediately below the caller must belong to
	// the same function.
	t := c.top()
	if t == nil || t.compiled || t.fn != fn {
		return
	}
	rec := c.e.policy.OSRRequest(fn, pc)
	if rec == nil {
		return
	}
	var offset uintptr
	found := false
	for _, entry := range rec.Table {
		if entry.PC == pc {
			offset = entry.Offset
			found = true
			break
		}
	}
	if !found {
		return
	}
	c.SyncPC(pc)
	// The overwrite must land before the stub returns so the next native
	// ret observes the new target.
	stack.StorePointer(t.sp-8, rec.Entry+offset)
	c.e.counters.TierUps++
	debugf("tier-up %s at pc %#x -> %#x", fn.Name, pc, rec.Entry+offset)
}
