// Package stores provides the local run-history ledger of ddpctl.
// It keeps one row per command invocation, one row per engine task and one
// row per appliance job in an SQLite database, so operators can see what a
// previous run did after its log file has rotated away.
package stores
