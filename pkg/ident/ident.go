// Package ident derives the deterministic identifiers pagewire uses for
// pages and widgets.
//
// Both are name-based UUIDs (version 5) under a fixed namespace, so the same
// inputs produce the same identifier in every process, forever. Changing
// Namespace or the input layout invalidates every stored session.
package ident

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Namespace is the UUID namespace for every pagewire identifier.
var Namespace = uuid.MustParse("6f1d3c2e-8a4b-5e7f-9c0d-2b1a3e4f5d6c")

// PageID returns the identifier of the page registered at route.
func PageID(route string) string {
	return uuid.NewSHA1(Namespace, []byte("page\x00"+route)).String()
}

// WidgetID returns the identifier of the widget of the given kind at path
// on page pageID. kind is the widget kind name.
func WidgetID(pageID, kind string, path []int) string {
	var b strings.Builder
	b.Grow(len(pageID) + len(kind) + 4*len(path) + 8)
	b.WriteString("widget\x00")
	b.WriteString(pageID)
	b.WriteByte(0)
	b.WriteString(kind)
	b.WriteByte(0)
	b.WriteString(JoinPath(path))
	return uuid.NewSHA1(Namespace, []byte(b.String())).String()
}

// JoinPath renders a widget path as dot separated integers, e.g. "0.2.1".
func JoinPath(path []int) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// NewInstanceID returns a random identifier for a runtime instance.
func NewInstanceID() string {
	return uuid.NewString()
}
