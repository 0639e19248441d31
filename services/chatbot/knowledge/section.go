// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// =============================================================================
// Section View
// =============================================================================

// Item is one entry of an "items" list: either a bare string or a named
// entry with an optional description and timing.
type Item struct {
	Text        string
	Name        string
	Description string
	Timing      string
}

// UnmarshalJSON accepts a string or an object. Any other shape leaves the
// item empty so one bad entry never discards its siblings.
func (i *Item) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		i.Text = text
		return nil
	}
	var obj struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Timing      string `json:"timing"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		i.Name, i.Description, i.Timing = obj.Name, obj.Description, obj.Timing
	}
	return nil
}

// Obligation describes a legal duty, e.g. the landlord's deposit return.
type Obligation struct {
	Description      string `json:"description"`
	ReasonablePeriod string `json:"reasonable_period"`
	Note             string `json:"note"`
}

// Guide is an ordered list of steps with an emphasis line.
type Guide struct {
	Steps      []string `json:"steps"`
	Importance string   `json:"importance"`
}

// Dispute is a frequently disputed item with a prevention tip.
type Dispute struct {
	Item          string `json:"item"`
	Description   string `json:"description"`
	PreventionTip string `json:"prevention_tip"`
}

// Phase is one step of a move-out schedule.
type Phase struct {
	Period string   `json:"period"`
	Tasks  []string `json:"tasks"`
}

// CheckItem is a single checklist line with an optional note.
type CheckItem struct {
	Item string `json:"item"`
	Note string `json:"note"`
}

// Procedure is a titled procedure such as a formal notice or legal action.
type Procedure struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tip         string `json:"tip"`
}

// Section is the typed view of an object node's known fields.
//
// # Description
//
// Guide sections share a closed vocabulary of optional fields. Section
// decodes each field independently so a malformed value (wrong JSON type)
// only drops that field. Children that are not known fields are kept in
// Extra, in document order, and rendered after the known fields.
type Section struct {
	Title            string
	Description      string
	Features         []string
	Tips             []string
	Items            []Item
	Tip              string
	ReturnObligation *Obligation
	Guide            *Guide
	Usage            string
	FrequentDisputes []Dispute
	Schedule         []Phase
	CheckItems       []CheckItem
	NoticeProcedure  *Procedure
	LegalAction      *Procedure
	Spaces           []string
	Statuses         []string
	Extra            []*Node
}

// scheduleKeys are the move-out phases in chronological order.
var scheduleKeys = []string{"d_minus_7", "d_minus_3", "d_day", "d_plus_14"}

// SectionOf builds the typed view of an object node.
func SectionOf(n *Node) Section {
	var s Section
	phases := make([]*Phase, len(scheduleKeys))

	targets := map[string]any{
		"title":             &s.Title,
		"description":       &s.Description,
		"features":          &s.Features,
		"tips":              &s.Tips,
		"items":             &s.Items,
		"tip":               &s.Tip,
		"return_obligation": &s.ReturnObligation,
		"guide":             &s.Guide,
		"usage":             &s.Usage,
		"frequent_disputes": &s.FrequentDisputes,
		"check_items":       &s.CheckItems,
		"notice_procedure":  &s.NoticeProcedure,
		"legal_action":      &s.LegalAction,
		"spaces":            &s.Spaces,
		"statuses":          &s.Statuses,
	}
	for i, key := range scheduleKeys {
		targets[key] = &phases[i]
	}

	for _, key := range n.Keys() {
		child, _ := n.Field(key)
		target, known := targets[key]
		if !known {
			s.Extra = append(s.Extra, child)
			continue
		}
		raw, err := child.MarshalJSON()
		if err == nil {
			err = json.Unmarshal(raw, target)
		}
		if err != nil {
			slog.Debug("skipping malformed guide field", "field", key, "error", err)
		}
	}

	for _, p := range phases {
		if p != nil {
			s.Schedule = append(s.Schedule, *p)
		}
	}
	return s
}

// =============================================================================
// Rendering
// =============================================================================

var blankRunPattern = regexp.MustCompile(`(\n\s*){3,}`)

// Render converts a node to plain text for direct display.
//
// # Description
//
// Text nodes render as their value, list nodes as one line per item, and
// object nodes through their Section view. Blocks are separated by a blank
// line, runs of blank lines collapse to one, and the result is trimmed.
//
// # Examples
//
//	section, _ := kb.Lookup("moveout_management.deposit_management")
//	fmt.Println(knowledge.Render(section))
func Render(n *Node) string {
	var out string
	switch n.Kind() {
	case KindText:
		out = n.Text()
	case KindList:
		out = renderList(n)
	case KindObject:
		out = SectionOf(n).Render()
	}
	return tidy(out)
}

// Render converts the section to plain text.
func (s Section) Render() string {
	var blocks []string
	add := func(lines ...string) {
		var kept []string
		for _, l := range lines {
			if strings.TrimSpace(l) != "" {
				kept = append(kept, l)
			}
		}
		if len(kept) > 0 {
			blocks = append(blocks, strings.Join(kept, "\n"))
		}
	}

	add(s.Title)
	add(s.Description)
	add(bullets(s.Features)...)
	if tips := joinNonEmpty(s.Tips, " "); tips != "" {
		add("참고: " + tips)
	}
	add(renderItems(s.Items)...)
	add(s.Tip)
	if o := s.ReturnObligation; o != nil {
		add(o.Description, prefixed("합리적인 반환 기간: ", o.ReasonablePeriod), o.Note)
	}
	if g := s.Guide; g != nil {
		add(bullets(g.Steps)...)
		add(prefixed("중요: ", g.Importance))
	}
	add(s.Usage)
	for _, d := range s.FrequentDisputes {
		add(labelled(d.Item, d.Description), prefixed("  예방 팁: ", d.PreventionTip))
	}
	for _, p := range s.Schedule {
		add(append([]string{p.Period}, bullets(p.Tasks)...)...)
	}
	var checks []string
	for _, c := range s.CheckItems {
		if c.Item == "" {
			continue
		}
		line := "· " + c.Item
		if c.Note != "" {
			line += " (" + c.Note + ")"
		}
		checks = append(checks, line)
	}
	add(checks...)
	for _, p := range []*Procedure{s.NoticeProcedure, s.LegalAction} {
		if p != nil {
			add(p.Title, p.Description, prefixed("참고: ", p.Tip))
		}
	}
	if spaces := joinNonEmpty(s.Spaces, ", "); spaces != "" {
		add("공간: " + spaces)
	}
	if statuses := joinNonEmpty(s.Statuses, ", "); statuses != "" {
		add("상태: " + statuses)
	}
	for _, child := range s.Extra {
		add(Render(child))
	}

	return tidy(strings.Join(blocks, "\n\n"))
}

func renderList(n *Node) string {
	var lines []string
	for _, item := range n.Items() {
		switch item.Kind() {
		case KindText:
			if t := strings.TrimSpace(item.Text()); t != "" {
				lines = append(lines, "· "+t)
			}
		default:
			if t := Render(item); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func renderItems(items []Item) []string {
	var lines []string
	for _, it := range items {
		switch {
		case it.Text != "":
			lines = append(lines, "· "+it.Text)
		case it.Name != "":
			line := labelled(it.Name, it.Description)
			if it.Timing != "" {
				line += " (" + it.Timing + ")"
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func bullets(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, "· "+v)
		}
	}
	return out
}

func labelled(name, description string) string {
	if name == "" {
		return ""
	}
	if description == "" {
		return "· " + name
	}
	return "· " + name + ": " + description
}

func prefixed(prefix, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return prefix + value
}

func joinNonEmpty(values []string, sep string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}

func tidy(s string) string {
	return strings.TrimSpace(blankRunPattern.ReplaceAllString(s, "\n\n"))
}
