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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// =============================================================================
// Node Kinds
// =============================================================================

// Kind is the variant tag of a Node.
type Kind int

const (
	// KindText is a leaf string. JSON numbers, booleans and null load as text.
	KindText Kind = iota

	// KindList is an ordered list of nodes.
	KindList

	// KindObject is an ordered set of named child nodes.
	KindObject
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// =============================================================================
// Node
// =============================================================================

// Node is one element of the guide document tree.
//
// # Description
//
// A Node is exactly one of Text, List or Object. Objects remember the order
// their keys appeared in the source document so that serialization, scoring
// and rendering are deterministic.
//
// # Thread Safety
//
// Nodes are never mutated after Parse returns. Methods that derive a new tree
// (Select, Without) allocate a fresh parent and share the unchanged children,
// so any number of goroutines may read the same tree.
type Node struct {
	kind   Kind
	text   string
	items  []*Node
	keys   []string
	fields map[string]*Node
}

// Parse decodes a JSON document into a Node tree, preserving object key order.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeNode(dec)
	if err != nil {
		return nil, fmt.Errorf("parse guide document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse guide document: trailing data after root value")
	}
	return root, nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeList(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return &Node{kind: KindText, text: t}, nil
	case json.Number:
		return &Node{kind: KindText, text: t.String()}, nil
	case bool:
		return &Node{kind: KindText, text: strconv.FormatBool(t)}, nil
	case nil:
		return &Node{kind: KindText}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func decodeObject(dec *json.Decoder) (*Node, error) {
	n := &Node{kind: KindObject, fields: make(map[string]*Node)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", keyTok)
		}
		child, err := decodeNode(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := n.fields[key]; !dup {
			n.keys = append(n.keys, key)
		}
		n.fields[key] = child
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeList(dec *json.Decoder) (*Node, error) {
	n := &Node{kind: KindList}
	for dec.More() {
		item, err := decodeNode(dec)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", len(n.items), err)
		}
		n.items = append(n.items, item)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return n, nil
}

// Kind returns the variant tag. A nil node reports KindText.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindText
	}
	return n.kind
}

// Text returns the string value of a text node, or "" for other kinds.
func (n *Node) Text() string {
	if n == nil || n.kind != KindText {
		return ""
	}
	return n.text
}

// Items returns the children of a list node.
func (n *Node) Items() []*Node {
	if n == nil || n.kind != KindList {
		return nil
	}
	return n.items
}

// Keys returns the object keys in document order.
func (n *Node) Keys() []string {
	if n == nil || n.kind != KindObject {
		return nil
	}
	return n.keys
}

// Len returns the number of children of a list or object node.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindList:
		return len(n.items)
	case KindObject:
		return len(n.keys)
	default:
		return 0
	}
}

// Field returns the named child of an object node.
func (n *Node) Field(key string) (*Node, bool) {
	if n == nil || n.kind != KindObject {
		return nil, false
	}
	child, ok := n.fields[key]
	return child, ok
}

// Lookup walks a dot-separated key path from n.
//
// Every segment must name an existing object field. Empty segments and
// paths that pass through a list or text node fail.
func (n *Node) Lookup(path string) (*Node, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	cur := n
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, false
		}
		next, ok := cur.Field(segment)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Select returns a new object holding only the given keys of n, in the
// order given. Keys n does not have are ignored.
func (n *Node) Select(keys []string) *Node {
	out := &Node{kind: KindObject, fields: make(map[string]*Node, len(keys))}
	for _, key := range keys {
		child, ok := n.Field(key)
		if !ok {
			continue
		}
		if _, dup := out.fields[key]; dup {
			continue
		}
		out.keys = append(out.keys, key)
		out.fields[key] = child
	}
	return out
}

// Without returns a new object with every key of n except the named one.
func (n *Node) Without(key string) *Node {
	keep := make([]string, 0, n.Len())
	for _, k := range n.Keys() {
		if k != key {
			keep = append(keep, k)
		}
	}
	return n.Select(keep)
}

// Wrap returns a single-key object {key: n}.
func Wrap(key string, n *Node) *Node {
	return &Node{
		kind:   KindObject,
		keys:   []string{key},
		fields: map[string]*Node{key: n},
	}
}

// =============================================================================
// Serialization
// =============================================================================

// MarshalJSON encodes the node as compact JSON, keeping key order and
// leaving non-ASCII and HTML characters unescaped.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the compact JSON form.
func (n *Node) String() string {
	data, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// Indented returns the JSON form indented by two spaces.
func (n *Node) Indented() string {
	data, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return string(data)
	}
	return out.String()
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindText:
		return writeJSONString(buf, n.Text())
	case KindList:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, key := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := n.fields[key].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
