// Package amd64 is a thin assembler for the handful of instruction shapes
// the stack-switch stubs need. It drives golang-asm's x86 backend.
//
// Note: golang-asm uses the Go assembler's notation, so 64-bit mov is
// x86.AMOVQ regardless of operand kinds.
package amd64

import (
	"fmt"
	"sync"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Register aliases for the registers with a fixed role in the stub ABI.
const (
	// RegStack and RegBottom carry the stub arguments (SysV integer
	// argument registers).
	RegStack  = x86.REG_DI
	RegBottom = x86.REG_SI
	// RegVSP is the dedicated value-stack-pointer register. Generated code
	// keeps the live VSP here between runtime calls.
	RegVSP = x86.REG_R12
	// RegTemp, RegTemp2 and RegTemp3 are scratch.
	RegTemp  = x86.REG_AX
	RegTemp2 = x86.REG_CX
	RegTemp3 = x86.REG_BX
	RegZero  = x86.REG_DX
	// RegSP is the machine stack pointer.
	RegSP = x86.REG_SP
)

// golang-asm is not goroutine-safe so we take lock until we complete the
// assembly of one unit.
var assemblerMutex sync.Mutex

// Assembler accumulates instructions for one code unit.
type Assembler struct {
	b *goasm.Builder
	// setBranchTargetOnNext holds branch nodes whose target is the next
	// emitted instruction.
	setBranchTargetOnNext []*obj.Prog
}

// NewAssembler locks the shared backend and returns a fresh builder. The
// caller must invoke Finish (usually via defer) when done.
func NewAssembler() (*Assembler, error) {
	assemblerMutex.Lock()
	b, err := goasm.NewBuilder("amd64", 64)
	if err != nil {
		assemblerMutex.Unlock()
		return nil, fmt.Errorf("failed to create assembly builder: %w", err)
	}
	return &Assembler{b: b}, nil
}

// Finish releases the shared backend.
func (a *Assembler) Finish() { assemblerMutex.Unlock() }

func (a *Assembler) newProg() *obj.Prog { return a.b.NewProg() }

func (a *Assembler) addInstruction(p *obj.Prog) {
	a.b.AddInstruction(p)
	for _, branch := range a.setBranchTargetOnNext {
		branch.To.SetTarget(p)
	}
	a.setBranchTargetOnNext = nil
}

// Assemble encodes the accumulated instructions.
func (a *Assembler) Assemble() []byte { return a.b.Assemble() }

// SetBranchTargetOnNext resolves the given branches to the next
// instruction emitted.
func (a *Assembler) SetBranchTargetOnNext(branches ...*obj.Prog) {
	a.setBranchTargetOnNext = append(a.setBranchTargetOnNext, branches...)
}

// Standalone emits an operand-less instruction such as RET or INT3.
func (a *Assembler) Standalone(inst obj.As) *obj.Prog {
	p := a.newProg()
	p.As = inst
	a.addInstruction(p)
	return p
}

// RegToReg emits "inst from, to".
func (a *Assembler) RegToReg(inst obj.As, from, to int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	a.addInstruction(p)
}

// MemToReg emits "inst offset(base), to".
func (a *Assembler) MemToReg(inst obj.As, base int16, offset int64, to int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = base
	p.From.Offset = offset
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	a.addInstruction(p)
}

// RegToMem emits "inst from, offset(base)".
func (a *Assembler) RegToMem(inst obj.As, from, base int16, offset int64) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = base
	p.To.Offset = offset
	a.addInstruction(p)
}

// ConstToReg emits "inst $const, to".
func (a *Assembler) ConstToReg(inst obj.As, c int64, to int16) {
	p := a.newProg()
	p.As = inst
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = c
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	a.addInstruction(p)
}

// JmpReg emits an indirect jump through a register.
func (a *Assembler) JmpReg(reg int16) {
	p := a.newProg()
	p.As = obj.AJMP
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	a.addInstruction(p)
}

// Int emits a software interrupt, used to fence code paths generated code
// must never reach.
func (a *Assembler) Int(v int64) {
	p := a.newProg()
	p.As = x86.AINT
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = v
	a.addInstruction(p)
}

// Jcc emits a conditional jump whose target is resolved later via
// SetBranchTargetOnNext.
func (a *Assembler) Jcc(inst obj.As) *obj.Prog {
	p := a.newProg()
	p.As = inst
	p.To.Type = obj.TYPE_BRANCH
	a.addInstruction(p)
	return p
}
