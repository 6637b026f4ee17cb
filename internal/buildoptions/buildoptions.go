package buildoptions

// IsDebugMode enables the debug-mode diagnostics: a line for each function
// invocation naming the tier it runs on, and one per tier-up. This is
// disabled by default since the checks are in hot paths, and enabling this
// is only for developers.
const IsDebugMode = false

// CallStackCeiling is the hard limit on the depth of the logical call stack
// tracked per stack object. Exceeding this raises a stack-overflow trap
// before the guard page is ever reached.
const CallStackCeiling = 2000

// CountTierUps names the instrumentation counters around tier-up and probe
// firing. The engine keeps those counters unconditionally; it does not read
// this flag.
const CountTierUps = true
