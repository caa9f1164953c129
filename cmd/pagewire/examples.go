package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/ui"
)

func registerExamples(r *router.Router) {
	r.Page("/greeter", "Greeter", greeter)
	r.Page("/calculator", "Calculator", calculator)

	admin := r.Group("/admin").AccessGroups("admin")
	admin.Page("/signup", "Sign-up form", signup)
}

func greeter(_ context.Context, b *ui.Builder) error {
	name := b.TextInput("Your name", ui.WithPlaceholder("Ada"), ui.WithMaxLength(64))
	shout := b.Checkbox("Shout")
	if b.Button("Greet") && name != "" {
		msg := fmt.Sprintf("Hello, %s!", name)
		if shout {
			msg = strings.ToUpper(msg)
		}
		b.Text(msg)
	}
	return nil
}

func calculator(_ context.Context, b *ui.Builder) error {
	cols := b.Columns(2, ui.WithWeights(1, 1))
	x := cols[0].NumberInput("x", ui.WithDefaultNumber(1))
	y := cols[1].NumberInput("y", ui.WithDefaultNumber(2))
	op := b.Select("Operation", []string{"+", "-", "*", "/"})

	var result float64
	switch op {
	case "-":
		result = x - y
	case "*":
		result = x * y
	case "/":
		if y == 0 {
			return fmt.Errorf("division by zero")
		}
		result = x / y
	default:
		result = x + y
	}
	b.Text(fmt.Sprintf("%g %s %g = %g", x, op, y, result))
	return nil
}

func signup(_ context.Context, b *ui.Builder) error {
	form, submitted := b.Form("Sign up", ui.ClearOnSubmit())
	email := form.TextInput("Email")
	plan := form.Select("Plan", []string{"free", "team", "enterprise"})
	form.Button("Submit")

	if submitted {
		b.Table([]string{"email", "plan"}, [][]string{{email, plan}})
	}
	return nil
}
