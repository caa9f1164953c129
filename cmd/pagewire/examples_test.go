package main

import (
	"testing"

	"github.com/vango-dev/pagewire/pkg/router"
)

func TestRegisterExamples(t *testing.T) {
	r := router.New()
	registerExamples(r)

	pages := r.Registry().Catalogue()
	if len(pages) != 3 {
		t.Fatalf("pages = %+v", pages)
	}
	signup, ok := r.Registry().ByRoute("/admin/signup")
	if !ok {
		t.Fatal("/admin/signup not registered")
	}
	if groups := signup.AccessGroups(); len(groups) != 1 || groups[0] != "admin" {
		t.Errorf("access groups = %v", groups)
	}
}
