package engine

import (
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// CallHost is the generalized call routine: given either kind of function,
// it invokes it against the value stack, looping through host-to-host tail
// calls and entering Wasm targets directly.
func (c *execContext) CallHost(f wasm.Function) wasm.Throwable {
	for {
		switch fn := f.(type) {
		case *wasm.WasmFunction:
			return c.invoke(fn)
		case *wasm.HostFunction:
			next, thrown := c.callHost2(fn)
			if thrown != nil || next == nil {
				return thrown
			}
			f = next
		default:
			return wasm.NewInternalError("unknown function kind %T", f)
		}
	}
}

// callHost2 runs one host function against the value stack. It returns a
// non-nil WasmFunction when the host tail-called into Wasm: the caller
// (the enter-func stub or the CallHost loop) enters it without growing the
// native stack.
func (c *execContext) callHost2(hf *wasm.HostFunction) (*wasm.WasmFunction, wasm.Throwable) {
	o := c.o
	// Host-call prologue: the machine stack pointer, minus the slot the
	// call consumed, is stashed so a blocking host call leaves a walkable
	// stack behind.
	savedRSP := o.RSP()
	o.EnterHost(savedRSP - 8)

	args := o.PopN(hf.Type.Params)
	for {
		res := hf.Callback(args)

		// The callback may have re-entered the engine and switched stacks;
		// currentStack is the only source of truth on re-entry.
		if currentStack != nil {
			c.o = currentStack
			o = c.o
		}

		switch res.Kind {
		case wasm.HostResultValue:
			if len(res.Values) != len(hf.Type.Results) {
				o.LeaveHost()
				o.SetRSP(savedRSP)
				return nil, wasm.NewInternalError(
					"%s returned %d values, signature has %d", hf, len(res.Values), len(hf.Type.Results))
			}
			o.LeaveHost()
			o.SetRSP(savedRSP)
			o.PushN(res.Values)
			return nil, nil

		case wasm.HostResultThrow:
			thrown := res.Thrown
			if thrown == nil {
				thrown = wasm.NewInternalError("%s threw nil", hf)
			}
			o.LeaveHost()
			o.SetRSP(savedRSP)
			// Prepend the host frame, then the Wasm frame chain below it.
			frames := append([]wasm.TraceFrame{{Host: hf}}, c.e.Walk(c.frameSP())...)
			thrown.PrependFrames(frames)
			return nil, thrown

		case wasm.HostResultTailCall:
			switch target := res.Target.(type) {
			case *wasm.HostFunction:
				// Host-to-host: loop in place, reusing the argument
				// sequence.
				hf = target
				args = res.Args
				continue
			case *wasm.WasmFunction:
				o.LeaveHost()
				o.SetRSP(savedRSP)
				o.PushN(res.Args)
				return target, nil
			default:
				o.LeaveHost()
				o.SetRSP(savedRSP)
				return nil, wasm.NewInternalError("tail call to unknown function kind %T", res.Target)
			}

		default:
			o.LeaveHost()
			o.SetRSP(savedRSP)
			return nil, wasm.NewInternalError("%s returned invalid result kind %d", hf, res.Kind)
		}
	}
}
