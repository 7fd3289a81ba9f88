package engine_test

import (
	"context"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/appliance/fake"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
)

func exampleRecord(hostname string, isDefault bool) inventory.EngineRecord {
	c := inventory.DefaultCipher()
	user, _ := c.EncryptString("admin")
	pass, _ := c.EncryptString("delphix")
	return inventory.EngineRecord{
		Hostname:    hostname,
		IPAddress:   "10.0.0.1",
		Username:    user,
		Password:    pass,
		IsDefault:   isDefault,
		IsEncrypted: true,
	}
}

// Example_fanOut runs one workflow on every engine of a fleet. Each workflow
// starts an appliance job; the executor drains the jobs before the engine
// task finishes and maps the aggregate to an exit code.
func Example_fanOut() {
	appliances := map[string]*fake.Appliance{"eng1": fake.New(), "eng2": fake.New()}
	appliances["eng2"].JobStates = []appliance.JobState{appliance.JobRunning, appliance.JobFailed}

	fleet := inventory.NewFleet(exampleRecord("eng1", true), exampleRecord("eng2", false))
	sessions := engine.NewSessionManager(engine.SessionConfig{
		Dial: func(rec inventory.EngineRecord) (appliance.Client, error) {
			return appliances[rec.Hostname], nil
		},
		Tracker:       engine.NewTracker(engine.TrackerConfig{PollInterval: -1}),
		ReadyInterval: -1,
	})
	executor := engine.NewExecutor(engine.ExecutorConfig{Sessions: sessions})

	agg, err := executor.Run(context.Background(), fleet, engine.AllEngines(), func(ctx context.Context, s *engine.Session) error {
		res, err := s.Client().Action(ctx, appliance.KindDatabase, "ORACLE_DB_CONTAINER-1", "sync", nil)
		if err != nil {
			return err
		}
		_, err = s.Submit(ctx, res)
		return err
	}, false)
	if err != nil {
		panic(err)
	}

	for _, o := range agg.Outcomes {
		fmt.Printf("%s: %s\n", o.Hostname, o.Status)
	}
	fmt.Println("exit code:", agg.ExitCode())
	// Output:
	// eng1: succeeded
	// eng2: failed
	// exit code: 3
}

// Example_exitCodes shows how classified errors map to process exit codes.
func Example_exitCodes() {
	errs := []error{
		nil,
		engine.NewConfigError("no default engine", nil),
		engine.NewNetworkError("connection refused", nil),
		engine.NewInterruptedError("interrupted", context.Canceled),
	}
	for _, err := range errs {
		fmt.Println(engine.ExitCodeFor(err))
	}
	// Output:
	// 0
	// 2
	// 1
	// 0
}
