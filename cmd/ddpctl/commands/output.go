package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
)

// collector gathers rows produced by concurrent engine tasks.
type collector[T any] struct {
	mu   sync.Mutex
	rows []T
}

func (c *collector[T]) add(rows ...T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, rows...)
}

// sorted returns the rows ordered by engine, keeping each engine's rows in
// the order the appliance returned them.
func (c *collector[T]) sorted(engineOf func(T) string) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]T(nil), c.rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return engineOf(out[i]) < engineOf(out[j])
	})
	return out
}

// table describes how rows of T are printed.
type table[T any] struct {
	header []string
	engine func(T) string
	cells  func(T) []string
}

// report returns a fleetCommand report printing the collected rows.
func (t table[T]) report(c *collector[T]) func(w io.Writer, asJSON bool) error {
	return func(w io.Writer, asJSON bool) error {
		rows := c.sorted(t.engine)
		if asJSON {
			return writeJSON(w, rows)
		}
		return writeTable(w, t.header, len(rows), func(i int) []string { return t.cells(rows[i]) })
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, header []string, n int, row func(i int) []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i := 0; i < n; i++ {
		fmt.Fprintln(tw, strings.Join(row(i), "\t"))
	}
	return tw.Flush()
}

// orDash renders empty cells as "-".
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
