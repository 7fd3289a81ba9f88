// Package engine provides the fleet orchestration runtime of ddpctl.
//
// # Overview
//
// A command runs the same per-engine workflow against a selection of
// appliances. The engine package owns everything around that workflow:
//
//  1. Selection - pick engines from the inventory (Selector)
//  2. Session - authenticate and wait for readiness (SessionManager)
//  3. Submit - the workflow issues operations and submits their jobs (Session.Submit)
//  4. Drain - poll every submitted job until it is terminal (Tracker)
//  5. Aggregate - collect per-engine outcomes and map them to an exit code (Aggregate)
//
// # Concurrency
//
// The Executor is the only place that starts goroutines for engine work. In
// single-thread mode tasks run one after another on the calling goroutine
// and every job is awaited when it is submitted. Otherwise one goroutine runs
// per engine, jobs are queued in the session's JobSet and drained after the
// workflow returns. A Session is never shared between goroutines.
//
//	exec := engine.NewExecutor(engine.ExecutorConfig{Sessions: sessions})
//	agg, err := exec.Run(ctx, fleet, engine.AllEngines(), func(ctx context.Context, s *engine.Session) error {
//	    res, err := s.Client().Action(ctx, appliance.KindDatabase, ref, "sync", params)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = s.Submit(ctx, res)
//	    return err
//	}, false)
//
// # Cancellation
//
// Canceling the run context stops dispatch of new tasks. Started tasks stop
// at their next REST call, poll sleep or readiness wait; their sessions are
// closed and the aggregate is marked interrupted.
//
// # Error Classification
//
// Errors are classified by Kind (config, auth, network, not_found,
// ambiguous, request, job, interrupted, internal). KindOf classifies raw
// appliance and inventory errors, and ExitCodeFor maps a kind to the
// process exit code.
package engine
