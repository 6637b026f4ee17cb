package wasm

// Probe is a user-registered callback fired at loop headers or at single
// instructions. A probe returning a *Trap injects that trap into the probed
// frame; any other throwable propagates verbatim.
type Probe func(fn *WasmFunction, pc uint32) Throwable

type probeKey struct {
	decl *FuncDecl
	pc   uint32
}

// ProbeRegistry holds the global (loop) probes and the per-(function,pc)
// local (instruction) probes.
type ProbeRegistry struct {
	global []Probe
	local  map[probeKey][]Probe
}

func NewProbeRegistry() *ProbeRegistry {
	return &ProbeRegistry{local: map[probeKey][]Probe{}}
}

// RegisterGlobal adds a probe fired at every loop header.
func (r *ProbeRegistry) RegisterGlobal(p Probe) { r.global = append(r.global, p) }

// RegisterLocal adds a probe fired when fn's declaration reaches pc.
func (r *ProbeRegistry) RegisterLocal(decl *FuncDecl, pc uint32, p Probe) {
	k := probeKey{decl, pc}
	r.local[k] = append(r.local[k], p)
}

// FireGlobal runs the global probes in registration order, stopping at the
// first throwable.
func (r *ProbeRegistry) FireGlobal(fn *WasmFunction, pc uint32) Throwable {
	for _, p := range r.global {
		if t := p(fn, pc); t != nil {
			return t
		}
	}
	return nil
}

// FireLocal runs the probes registered at (fn.Decl, pc).
func (r *ProbeRegistry) FireLocal(fn *WasmFunction, pc uint32) Throwable {
	for _, p := range r.local[probeKey{fn.Decl, pc}] {
		if t := p(fn, pc); t != nil {
			return t
		}
	}
	return nil
}
