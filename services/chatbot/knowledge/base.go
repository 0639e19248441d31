// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge loads the Home'Scan guide document and renders its
// sections to plain text.
//
// The document is read once at startup and passed by value into the
// pipeline. Nothing in this package mutates a loaded Base.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

//go:embed guides.json
var defaultGuide []byte

// ErrSectionNotFound is returned when a section path does not resolve.
var ErrSectionNotFound = errors.New("guide section not found")

// SuggestionsKey is the top-level key holding suggested questions per topic.
const SuggestionsKey = "suggested_questions"

// topicSections maps a topic hint to the top-level guide section it reads.
var topicSections = map[string]string{
	"contract_review": "contract_guide",
	"deed_analysis":   "contract_guide",
	"residency":       "residency_management",
	"moveout":         "moveout_management",
}

// SectionKey returns the top-level guide key for a topic hint. Hints
// are matched case-insensitively.
func SectionKey(topic string) (string, bool) {
	key, ok := topicSections[foldTopic(topic)]
	return key, ok
}

func foldTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Suggestion is a canned question and the section that answers it.
type Suggestion struct {
	Label   string `json:"label"`
	Section string `json:"section,omitempty"`
}

// Base is a loaded, immutable guide document.
//
// # Thread Safety
//
// Safe for concurrent use. All accessors are read-only.
type Base struct {
	root        *Node
	topics      []string
	suggestions map[string][]Suggestion
}

// New wraps a parsed document. The root must be an object.
func New(root *Node) (*Base, error) {
	if root.Kind() != KindObject {
		return nil, fmt.Errorf("guide document root must be an object, got %s", root.Kind())
	}
	b := &Base{root: root, suggestions: make(map[string][]Suggestion)}

	registry, _ := root.Field(SuggestionsKey)
	for _, topic := range registry.Keys() {
		list, _ := registry.Field(topic)
		b.topics = append(b.topics, topic)
		b.suggestions[topic] = parseSuggestions(topic, list)
	}
	return b, nil
}

// Load reads the guide document from path. An empty path loads the guide
// embedded in the binary.
func Load(path string) (*Base, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guide document: %w", err)
	}
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(root)
}

// LoadDefault loads the embedded guide document.
func LoadDefault() (*Base, error) {
	root, err := Parse(defaultGuide)
	if err != nil {
		return nil, err
	}
	return New(root)
}

func parseSuggestions(topic string, list *Node) []Suggestion {
	var out []Suggestion
	for i, entry := range list.Items() {
		switch entry.Kind() {
		case KindText:
			if label := strings.TrimSpace(entry.Text()); label != "" {
				out = append(out, Suggestion{Label: label})
			}
		case KindObject:
			label, _ := entry.Field("label")
			section, _ := entry.Field("section")
			if strings.TrimSpace(label.Text()) == "" {
				slog.Debug("skipping suggestion without label", "topic", topic, "index", i)
				continue
			}
			out = append(out, Suggestion{
				Label:   strings.TrimSpace(label.Text()),
				Section: strings.TrimSpace(section.Text()),
			})
		default:
			slog.Debug("skipping malformed suggestion", "topic", topic, "index", i)
		}
	}
	return out
}

// Root returns the whole document.
func (b *Base) Root() *Node {
	return b.root
}

// Lookup resolves a dot-separated section path from the document root.
func (b *Base) Lookup(path string) (*Node, error) {
	n, ok := b.root.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, path)
	}
	return n, nil
}

// Context returns the subtree a topic reads from. Unknown or empty topics
// get the whole document without the suggestion registry.
func (b *Base) Context(topic string) *Node {
	if key, ok := SectionKey(topic); ok {
		if n, ok := b.root.Field(key); ok {
			return n
		}
	}
	return b.root.Without(SuggestionsKey)
}

// Topics returns the topics that have suggestions, in document order.
func (b *Base) Topics() []string {
	return append([]string(nil), b.topics...)
}

// Suggestions returns the suggestions registered for a topic. An empty
// topic returns every topic's suggestions with duplicate labels removed.
func (b *Base) Suggestions(topic string) []Suggestion {
	topic = foldTopic(topic)
	if topic != "" {
		return append([]Suggestion(nil), b.suggestions[topic]...)
	}

	seen := make(map[string]struct{})
	var all []Suggestion
	for _, t := range b.topics {
		for _, s := range b.suggestions[t] {
			if _, dup := seen[s.Label]; dup {
				continue
			}
			seen[s.Label] = struct{}{}
			all = append(all, s)
		}
	}
	return all
}
