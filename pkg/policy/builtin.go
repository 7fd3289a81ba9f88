package policy

import (
	"fmt"
	"sort"
	"strings"
)

// builtins are opt-in; none is loaded unless named with BuiltinPrefix.
var builtins = map[string]func() Policy{
	"no-fleet-wide-deletes": noFleetWideDeletesPolicy,
	"protect-production":    protectProductionPolicy,
	"explicit-engine":       explicitEnginePolicy,
}

// Builtin returns the builtin policy called name.
func Builtin(name string) (Policy, error) {
	fn, ok := builtins[name]
	if !ok {
		return Policy{}, &ValidationError{
			Field:   "builtin",
			Message: fmt.Sprintf("unknown, expected one of %s", strings.Join(BuiltinNames(), ", ")),
			Value:   name,
		}
	}
	p := fn()
	p.Source = BuiltinPrefix + name
	return p, nil
}

// BuiltinNames lists the builtin policies.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// noFleetWideDeletesPolicy refuses destructive commands selected with --all.
func noFleetWideDeletesPolicy() Policy {
	return Policy{
		Name:        "no-fleet-wide-deletes",
		Description: "Refuses destructive commands run against every engine at once",
		Severity:    SeverityError,
		Rego: `package ddp.guard.fleetwide

deny contains violation if {
	input.destructive
	input.selector == "all"
	violation := {
		"message": sprintf("%s must not run with --all", [input.command]),
		"severity": "error",
	}
}
`,
	}
}

// protectProductionPolicy refuses destructive commands on engines whose
// identifier starts with prod.
func protectProductionPolicy() Policy {
	return Policy{
		Name:        "protect-production",
		Description: "Refuses destructive commands on engines labelled prod*",
		Severity:    SeverityCritical,
		Rego: `package ddp.guard.production

deny contains violation if {
	input.destructive
	startswith(lower(input.engine.identifier), "prod")
	violation := {
		"message": sprintf("%s refused on production engine %s", [input.command, input.engine.hostname]),
		"severity": "critical",
	}
}
`,
	}
}

// explicitEnginePolicy warns when a command falls back to the default engine.
func explicitEnginePolicy() Policy {
	return Policy{
		Name:        "explicit-engine",
		Description: "Warns when no engine was named and the default engine is used",
		Severity:    SeverityWarning,
		Rego: `package ddp.guard.explicit

deny contains msg if {
	input.selector == "default"
	msg := sprintf("%s ran on default engine %s", [input.command, input.engine.hostname])
}
`,
	}
}
