// Package nginxconf builds nginx configuration documents in memory.
//
// A Document is an ordered list of comments, directives, and blocks. Nothing
// in this package performs I/O; the builders in render.go are pure functions
// of their inputs, so identical inputs always produce byte-identical output.
// The orchestrator decides where rendered documents land on disk.
package nginxconf

import "strings"

const indentUnit = "    "

// Item is one element of a configuration document.
type Item interface {
	writeTo(b *strings.Builder, depth int)
}

// Comment renders as a "# ..." line.
type Comment string

func (c Comment) writeTo(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat(indentUnit, depth))
	b.WriteString("# ")
	b.WriteString(string(c))
	b.WriteString("\n")
}

// Directive is a single "name value;" line.
type Directive struct {
	Name  string
	Value string
}

func (d Directive) writeTo(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat(indentUnit, depth))
	b.WriteString(d.Name)
	if d.Value != "" {
		b.WriteString(" ")
		b.WriteString(d.Value)
	}
	b.WriteString(";\n")
}

// Block is a named "{ ... }" section: server, location, map.
type Block struct {
	Name  string
	Items []Item
}

// Add appends items to the block in order.
func (blk *Block) Add(items ...Item) {
	blk.Items = append(blk.Items, items...)
}

func (blk *Block) writeTo(b *strings.Builder, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	b.WriteString(indent)
	b.WriteString(blk.Name)
	b.WriteString(" {\n")
	for _, item := range blk.Items {
		item.writeTo(b, depth+1)
	}
	b.WriteString(indent)
	b.WriteString("}\n")
}

// Document is an ordered configuration file in memory.
type Document struct {
	Items []Item
}

// Add appends items to the document in order.
func (d *Document) Add(items ...Item) {
	d.Items = append(d.Items, items...)
}

// Render serializes the document. Top-level blocks are followed by a blank
// line for readability; output is fully determined by the document contents.
func (d *Document) Render() string {
	var b strings.Builder
	for _, item := range d.Items {
		item.writeTo(&b, 0)
		if _, isBlock := item.(*Block); isBlock {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Bytes returns the rendered document as a byte slice.
func (d *Document) Bytes() []byte {
	return []byte(d.Render())
}
