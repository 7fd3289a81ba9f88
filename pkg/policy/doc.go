// Package policy provides Open Policy Agent (OPA) guard rules for ddpctl.
//
// A guard policy is a Rego module with a deny set. Before a command runs its
// workflow on an engine, every loaded policy is evaluated with an Input
// describing the command and the engine. Deny members with severity error or
// critical refuse the command on that engine; warnings are logged and the
// command proceeds. Other engines of the same run are not affected.
//
// # Writing a policy
//
//	# Keep deletes off the reporting engines.
//	# severity: error
//	package ddp.guard.reporting
//
//	deny contains msg if {
//	    input.destructive
//	    input.engine.class == "reporting"
//	    msg := sprintf("%s refused on %s", [input.command, input.engine.hostname])
//	}
//
// Members may also be objects with message and severity keys, which
// override the policy's default severity.
//
// # Loading
//
// Policies are named with --policy, which may be repeated. A value is a .rego
// file, a .json definition, a directory of either, or builtin:NAME for one of
// BuiltinNames.
//
//	loader := policy.NewLoader(logger)
//	policies, err := loader.Load([]string{"builtin:no-fleet-wide-deletes", "/etc/ddpctl/policies"})
//	guard, err := policy.NewEngine(ctx, logger, policies)
//	wf = guard.Guard("vdb delete", true, "all", user, wf)
package policy
