package hart

// Exception is an architectural fault or trap-worthy condition raised
// during fetch, translate, decode, or execute. Unlike a host-fatal Go
// error, it is resumable control flow the trap handler delivers to the
// guest, so it is carried on the hart as a field rather than returned,
// keeping it distinct from StepResult.Err.
type Exception struct {
	Cause uint64
	Value uint64
}
