// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders stepflow CLI output: step progress, run summaries and
// failure diagnoses. Output adapts to a Mode so the same commands work on a
// terminal and in scripts.
package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = ColorSlate
)

// Styles is the set of lipgloss styles bound to one renderer.
type Styles struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}

// NewStyles builds Styles for r. The renderer decides the color profile,
// so styles bound to a non-terminal writer render without escapes.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:     r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Bold:      r.NewStyle().Bold(true),
		Muted:     r.NewStyle().Foreground(ColorMuted),
		Success:   r.NewStyle().Foreground(ColorSuccess),
		Warning:   r.NewStyle().Foreground(ColorWarning),
		Error:     r.NewStyle().Foreground(ColorError),
		Highlight: r.NewStyle().Foreground(ColorTealPrimary).Bold(true),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
		ErrorBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(0, 1),
	}
}

// Icon is a single status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconSkipped Icon = "↷"
	IconBlocked Icon = "⊘"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Printer writes decorated output to a writer. It is safe for concurrent
// use; each call writes whole lines.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	mode   Mode
	styles Styles
}

// NewPrinter returns a Printer for w. An empty mode is detected from w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if mode == "" {
		mode = DetectMode(w)
	}
	return &Printer{
		w:      w,
		mode:   mode,
		styles: NewStyles(lipgloss.NewRenderer(w)),
	}
}

// Mode returns the printer's output mode.
func (p *Printer) Mode() Mode { return p.mode }

// Styles returns the printer's style set.
func (p *Printer) Styles() Styles { return p.styles }

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// render applies style only in rich mode.
func (p *Printer) render(style lipgloss.Style, s string) string {
	if p.mode != ModeRich {
		return s
	}
	return style.Render(s)
}

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.render(p.styles.Success, string(i))
	case IconWarning, IconSkipped:
		return p.render(p.styles.Warning, string(i))
	case IconError, IconBlocked:
		return p.render(p.styles.Error, string(i))
	case IconPending:
		return p.render(p.styles.Muted, string(i))
	}
	return string(i)
}

// Title prints a heading. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	p.println(p.render(p.styles.Title, text))
}

func (p *Printer) Success(text string) { p.status(IconSuccess, "OK", p.styles.Success, text) }
func (p *Printer) Warning(text string) { p.status(IconWarning, "WARN", p.styles.Warning, text) }
func (p *Printer) Error(text string)   { p.status(IconError, "ERROR", p.styles.Error, text) }

func (p *Printer) status(i Icon, tag string, style lipgloss.Style, text string) {
	if p.mode == ModeMachine {
		p.println(tag + "\t" + text)
		return
	}
	p.println(p.icon(i) + " " + p.render(style, text))
}

// Info prints a plain line.
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		p.println(text)
		return
	}
	p.println(p.render(p.styles.Muted, "│") + " " + text)
}

// Box prints a titled block. Machine mode flattens it to "title: line".
func (p *Printer) Box(title, content string) {
	p.box(p.styles.Box, p.styles.Title, title, content)
}

// ErrorBox is Box with error colors.
func (p *Printer) ErrorBox(title, content string) {
	p.box(p.styles.ErrorBox, p.styles.Error.Bold(true), title, content)
}

func (p *Printer) box(frame, heading lipgloss.Style, title, content string) {
	switch p.mode {
	case ModeMachine:
		for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
			p.println(title + ":\t" + line)
		}
	case ModePlain:
		p.println(title)
		for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
			p.println("  " + line)
		}
	default:
		p.println(frame.Render(heading.Render(title) + "\n" + content))
	}
}

// Fields renders key/value pairs aligned on the key column. Machine mode
// uses key=value.
func (p *Printer) Fields(pairs ...[2]string) string {
	width := 0
	for _, kv := range pairs {
		width = max(width, len(kv[0]))
	}
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if p.mode == ModeMachine {
			b.WriteString(kv[0] + "=" + kv[1])
			continue
		}
		key := fmt.Sprintf("%-*s", width, kv[0])
		b.WriteString(p.render(p.styles.Muted, key) + "  " + kv[1])
	}
	return b.String()
}
