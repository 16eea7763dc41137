// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/stepflow/services/workflow/engine"
)

// StepReporter prints step lifecycle events as they happen. It implements
// engine.Reporter and is safe for the concurrent engine.
type StepReporter struct {
	p *Printer

	mu     sync.Mutex
	titles map[string]string
}

// NewStepReporter returns a reporter writing through p.
func NewStepReporter(p *Printer) *StepReporter {
	return &StepReporter{p: p, titles: make(map[string]string)}
}

var _ engine.Reporter = (*StepReporter)(nil)

// StepStarted implements engine.Reporter.
func (r *StepReporter) StepStarted(step engine.StepRef) engine.Helpers {
	if r.p.mode == ModeMachine {
		r.p.println("START\t" + step.Name())
	} else {
		r.p.println(indent(step) + r.p.icon(IconArrow) + " " + r.display(step))
	}
	return &stepHelpers{r: r, step: step}
}

// StepFinished implements engine.Reporter.
func (r *StepReporter) StepFinished(step engine.StepRef, out engine.Outcome) {
	if r.p.mode == ModeMachine {
		r.p.println(strings.ToUpper(string(out.Status)) + "\t" + step.Name() + detailSuffix(out, "\t"))
		return
	}
	line := indent(step) + r.p.icon(statusIcon(out.Status)) + " " + r.display(step)
	switch out.Status {
	case engine.StatusSucceeded, engine.StatusFailed:
		line += " " + r.p.render(r.p.styles.Muted, "("+formatDuration(out.Duration)+")")
	}
	if d := detailSuffix(out, " "); d != "" {
		line += r.p.render(r.p.styles.Muted, d)
	}
	r.p.println(line)
}

func (r *StepReporter) display(step engine.StepRef) string {
	r.mu.Lock()
	t, ok := r.titles[step.PathString()]
	r.mu.Unlock()
	if ok {
		return t
	}
	if step.Title != "" {
		return step.Title
	}
	return step.Name()
}

type stepHelpers struct {
	r    *StepReporter
	step engine.StepRef
}

func (h *stepHelpers) SetTitle(title string) {
	h.r.mu.Lock()
	h.r.titles[h.step.PathString()] = title
	h.r.mu.Unlock()
}

func (h *stepHelpers) Status(msg string) {
	p := h.r.p
	if p.mode == ModeMachine {
		p.println("STATUS\t" + h.step.Name() + "\t" + msg)
		return
	}
	p.println(indent(h.step) + "  " + p.render(p.styles.Muted, msg))
}

// Outcomes prints a tree of finished outcomes followed by a count line.
func (p *Printer) Outcomes(outcomes []engine.Outcome, d time.Duration) {
	var walk func([]engine.Outcome)
	walk = func(outs []engine.Outcome) {
		for _, o := range outs {
			if p.mode == ModeMachine {
				p.println(string(o.Status) + "\t" + o.Step.Name() + detailSuffix(o, "\t"))
			} else {
				p.println(indent(o.Step) + p.icon(statusIcon(o.Status)) + " " + o.Step.Name() + detailSuffix(o, " "))
			}
			walk(o.Children)
		}
	}
	walk(outcomes)

	counts := make(map[engine.Status]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	order := []engine.Status{
		engine.StatusSucceeded, engine.StatusFailed, engine.StatusBlocked,
		engine.StatusSkipped, engine.StatusPending,
	}
	if p.mode == ModeMachine {
		parts := make([]string, 0, len(order)+1)
		for _, s := range order {
			parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
		}
		parts = append(parts, "duration="+formatDuration(d))
		p.println("SUMMARY\t" + strings.Join(parts, " "))
		return
	}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		if counts[s] == 0 && s != engine.StatusSucceeded {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s",
			p.render(p.styles.Bold, fmt.Sprint(counts[s])), p.render(p.styles.Muted, string(s))))
	}
	p.println(strings.Join(parts, "  ") + p.render(p.styles.Muted, " in "+formatDuration(d)))
}

func statusIcon(s engine.Status) Icon {
	switch s {
	case engine.StatusSucceeded:
		return IconSuccess
	case engine.StatusFailed:
		return IconError
	case engine.StatusBlocked:
		return IconBlocked
	case engine.StatusSkipped:
		return IconSkipped
	default:
		return IconPending
	}
}

func detailSuffix(o engine.Outcome, sep string) string {
	switch o.Status {
	case engine.StatusFailed:
		if sf, ok := o.Err.(*engine.StepFailure); ok && sf.Err != nil {
			return sep + sf.Err.Error()
		}
		if o.Err != nil {
			return sep + o.Err.Error()
		}
	case engine.StatusBlocked:
		return sep + "blocked by " + strings.Join(o.BlockedBy, ", ")
	}
	return ""
}

func indent(step engine.StepRef) string {
	return strings.Repeat("  ", step.Depth())
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
