package resolve

import (
	"context"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// FindRunningJob returns a foreign handle for the running job acting on
// target, or nil when there is none.
func FindRunningJob(ctx context.Context, s *engine.Session, target appliance.ObjectRef) (*engine.JobHandle, error) {
	jobs, err := List[appliance.Job](ctx, s, appliance.KindJob, appliance.Query{
		"target":   target.ID,
		"jobState": string(appliance.JobRunning),
	})
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Target == target.ID && j.JobState == appliance.JobRunning {
			return &engine.JobHandle{
				Reference:   j.Reference,
				TargetRef:   target,
				Engine:      s.Hostname(),
				SubmittedAt: time.Now(),
				LastState:   j.JobState,
				Foreign:     true,
			}, nil
		}
	}
	return nil, nil
}
