package executor

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// It is a ramping executor over the flat profile [{0s,N},{D,N}]: all N VUs
// start on the first tick and retire once D has elapsed.
type ConstantVUs struct {
	*RampingVUs
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{RampingVUs: newProfileExecutor(TypeConstantVUs)}
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
