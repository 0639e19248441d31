// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux styles guidebot CLI output.
//
// Styling only applies on a terminal. Redirected output and NO_COLOR get
// plain lines so scripts can parse them.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Home'Scan palette
var (
	ColorBrand   = lipgloss.Color("#2F6FED")
	ColorAccent  = lipgloss.Color("#21B6A8")
	ColorMuted   = lipgloss.Color("#6B7785")
	ColorWarning = lipgloss.Color("#F4B400")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Bullet  lipgloss.Style
	Warning lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorBrand),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Bullet:  lipgloss.NewStyle().Foreground(ColorAccent),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1),
}

// Printer writes CLI output, styled or plain.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter returns a Printer for w. Output is plain unless w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, plain: !styled(w)}
}

// Plain reports whether output is unstyled.
func (p *Printer) Plain() bool {
	return p.plain
}

// Title prints a heading. Plain output omits it.
func (p *Printer) Title(text string) {
	if p.plain {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Answer prints a bot answer, boxed on a terminal.
func (p *Printer) Answer(text string) {
	if p.plain {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Width(72).Render(text))
}

// Bullet prints one list entry with an optional muted note.
func (p *Printer) Bullet(text, note string) {
	switch {
	case p.plain && note == "":
		fmt.Fprintf(p.w, "- %s\n", text)
	case p.plain:
		fmt.Fprintf(p.w, "- %s  (%s)\n", text, note)
	case note == "":
		fmt.Fprintf(p.w, "%s %s\n", Styles.Bullet.Render("•"), text)
	default:
		fmt.Fprintf(p.w, "%s %s  %s\n", Styles.Bullet.Render("•"), text, Styles.Muted.Render(note))
	}
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	if p.plain {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintln(p.w, Styles.Muted.Render(text))
}

func styled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
