package stack

// Generated code reads and writes Object fields with the following
// constants. See TestVerifyObjectOffsets for how these are derived.
const (
	// ObjectVSPOffset is where the resume stub loads the VSP register from
	// and where return-to-parent spills it back.
	ObjectVSPOffset = 0

	// ObjectRSPOffset is loaded into the machine stack pointer on resume
	// and updated by the host-call prologue.
	ObjectRSPOffset = 48

	// ObjectParentOffset and ObjectParentRSPOffset are used by the
	// return-to-parent stub to switch back.
	ObjectParentOffset    = 56
	ObjectParentRSPOffset = 64

	// ObjectTargetCodeOffset is read by the enter-func stub to dispatch to
	// the compiled entry; zero selects the interpreter path.
	ObjectTargetCodeOffset = 72

	// ObjectStateOffset is written on the RUNNING transitions.
	ObjectStateOffset = 80
)
