package engine

// Process exit codes.
const (
	// ExitOK is returned on success and after a user interrupt.
	ExitOK = 0

	// ExitInternal is returned for internal, network and request failures.
	ExitInternal = 1

	// ExitConfig is returned for configuration, credential and lookup failures.
	ExitConfig = 2

	// ExitJob is returned when an appliance job failed and nothing worse happened.
	ExitJob = 3
)

// severity orders exit codes so that the worst one wins when aggregating.
var severity = map[int]int{
	ExitOK:       0,
	ExitJob:      1,
	ExitInternal: 2,
	ExitConfig:   3,
}

// ExitCodeFor maps a single error to an exit code. Network and request
// failures exit 1 so scripts do not read an unreachable engine as success.
func ExitCodeFor(err error) int {
	switch {
	case err == nil, IsInterrupted(err):
		return ExitOK
	case IsConfig(err), IsAuth(err), IsNotFound(err), IsAmbiguous(err):
		return ExitConfig
	case IsJob(err):
		return ExitJob
	default:
		return ExitInternal
	}
}

// WorstExitCode returns the most severe of codes.
func WorstExitCode(codes ...int) int {
	worst := ExitOK
	for _, c := range codes {
		if severity[c] > severity[worst] {
			worst = c
		}
	}
	return worst
}
