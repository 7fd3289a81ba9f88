package appliance

import (
	"encoding/json"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		id   string
		want EngineType
	}{
		{"ORACLE_DB_CONTAINER-12", EngineOracle},
		{"MSSQL_DB_CONTAINER-3", EngineMSSql},
		{"ASE_DB_CONTAINER-7", EngineASE},
		{"APPDATA_CONTAINER-1", EngineAppData},
		{"oracle_virtual_source-2", EngineOracle},
		{"GROUP-2", EngineUnknown},
		{"", EngineUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ref := ParseRef(tt.id)
			if ref.Kind != tt.want {
				t.Errorf("ParseRef(%q).Kind = %s, want %s", tt.id, ref.Kind, tt.want)
			}
			if ref.ID != tt.id {
				t.Errorf("ParseRef(%q).ID = %q", tt.id, ref.ID)
			}
		})
	}
}

func TestObjectRefJSON(t *testing.T) {
	var holder struct {
		Container ObjectRef `json:"container"`
	}
	if err := json.Unmarshal([]byte(`{"container":"MSSQL_DB_CONTAINER-9"}`), &holder); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if holder.Container.Kind != EngineMSSql {
		t.Errorf("Kind = %s, want mssql", holder.Container.Kind)
	}

	out, err := json.Marshal(holder)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"container":"MSSQL_DB_CONTAINER-9"}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestJobStateClassification(t *testing.T) {
	tests := []struct {
		state      JobState
		terminal   bool
		successful bool
	}{
		{JobRunning, false, false},
		{JobSuspended, false, false},
		{JobCompleted, true, true},
		{JobCanceled, true, false},
		{JobFailed, true, false},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
		if got := tt.state.IsSuccessful(); got != tt.successful {
			t.Errorf("%s.IsSuccessful() = %v, want %v", tt.state, got, tt.successful)
		}
	}

	var s JobState
	if err := json.Unmarshal([]byte(`"EXPLODED"`), &s); err == nil {
		t.Error("expected error for unknown job state")
	}
}
