package health

import "context"

// ConnectedCheck is down while connected reports false.
func ConnectedCheck(connected func() bool) CheckFunc {
	return func(context.Context) Status {
		if connected() {
			return StatusOK
		}
		return StatusDown
	}
}

// OptionalConnectedCheck is degraded rather than down while disconnected,
// for dependencies the pipeline can run without.
func OptionalConnectedCheck(connected func() bool) CheckFunc {
	return func(context.Context) Status {
		if connected() {
			return StatusOK
		}
		return StatusDegraded
	}
}

// PingCheck is down when ping fails.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// BacklogCheck is degraded once pending reaches high.
func BacklogCheck(pending func() int, high int) CheckFunc {
	return func(context.Context) Status {
		if pending() >= high {
			return StatusDegraded
		}
		return StatusOK
	}
}
