package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"statecraft.ai/internal/protocol"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/world"
)

const maxContent = 100

// consoleReport prints the human-readable round report. It implements
// world.RoundLogger and world.FaultLogger.
type consoleReport struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleReport(out io.Writer) *consoleReport { return &consoleReport{out: out} }

func (c *consoleReport) Intro(agents []catalogs.AgentDef, order []string, rel [][]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, "Introduction of agents:")
	for _, a := range agents {
		fmt.Fprintf(c.out, "Alias: %s, Name: %s, Identity: %s\n", a.Alias, a.Name, a.Identity)
	}
	c.relations(order, rel)
}

func (c *consoleReport) WriteRound(e world.RoundLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "=== Round %d ===\n", e.Round)
	fmt.Fprintln(c.out, "Messages Sent:")
	for _, m := range e.Messages {
		c.message(m)
	}
	for _, m := range e.Public {
		c.message(m)
	}

	fmt.Fprintln(c.out, "Actions Taken:")
	for _, a := range e.Actions {
		obj := a.Object
		if obj == "" {
			obj = "None"
		}
		fmt.Fprintf(c.out, "Agent: %s, Action: %s, Object: %s\n", a.Subject, a.Action, obj)
	}

	if len(e.Outcomes) > 0 {
		fmt.Fprintln(c.out, "Battle Outcomes:")
		for _, o := range e.Outcomes {
			fmt.Fprintf(c.out, "%s vs %s: %s (military %+.1f, economic %+.1f)\n",
				strings.Join(o.Attackers, "+"), o.Defender, o.Result, o.MilitaryChange, o.EconomicChange)
		}
	}

	fmt.Fprintln(c.out, "Agents' State Variables:")
	for _, a := range e.Agents {
		fmt.Fprintf(c.out, "%s - Military Power: %.1f, Economic Power: %.1f\n", a.Alias, a.MilitaryPower, a.EconomicPower)
	}

	c.relations(e.Order, e.Relations)

	for _, r := range e.Analytics {
		if r.Defined() {
			fmt.Fprintf(c.out, "%s: %.2f\n", r.Name, r.Value)
		} else {
			fmt.Fprintf(c.out, "%s: undefined\n", r.Name)
		}
	}
	return nil
}

func (c *consoleReport) WriteFault(f world.Fault) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Fault: %s\n", f.Error())
	return nil
}

func (c *consoleReport) message(m protocol.Message) {
	content := m.Content
	if len(content) > maxContent {
		content = content[:maxContent-3] + "..."
	}
	fmt.Fprintf(c.out, "Type: %s, From: %s, To: %s, Content: %s\n", m.MessageType, m.Sender, m.Recipient, content)
}

// relations prints the matrix with right-aligned columns sized to the longest alias.
func (c *consoleReport) relations(order []string, rel [][]int) {
	fmt.Fprintln(c.out, "Relations Matrix:")
	width := 0
	for _, a := range order {
		if len(a) > width {
			width = len(a)
		}
	}
	width += 2

	var b strings.Builder
	fmt.Fprintf(&b, "%*s", width, "")
	for _, a := range order {
		fmt.Fprintf(&b, "%*s", width, a)
	}
	fmt.Fprintln(c.out, b.String())
	for i, a := range order {
		b.Reset()
		fmt.Fprintf(&b, "%*s", width, a)
		if i < len(rel) {
			for _, v := range rel[i] {
				fmt.Fprintf(&b, "%*d", width, v)
			}
		}
		fmt.Fprintln(c.out, b.String())
	}
}

type multiRoundLogger []world.RoundLogger

func (m multiRoundLogger) WriteRound(e world.RoundLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteRound(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiFaultLogger []world.FaultLogger

func (m multiFaultLogger) WriteFault(f world.Fault) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteFault(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}
