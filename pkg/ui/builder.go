// Package ui is the page-author API: a Builder bound to one session and one
// page run, addressing each widget call through a Cursor.
package ui

import (
	"context"
	"math"
	"sync"

	"github.com/vango-dev/pagewire/pkg/ident"
	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/widget"
)

// Emitter sends render messages for a page run.
type Emitter interface {
	Emit(ctx context.Context, rw *protocol.RenderWidget) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, rw *protocol.RenderWidget) error

// Emit calls f(ctx, rw).
func (f EmitterFunc) Emit(ctx context.Context, rw *protocol.RenderWidget) error {
	return f(ctx, rw)
}

// run is shared by a root builder and every container builder derived from it.
type run struct {
	ctx       context.Context
	sessionID string
	pageID    string
	state     *widget.Store
	emitter   Emitter

	mu  sync.Mutex
	err error
}

// Builder is handed to a page handler. Each widget call takes the next
// structural position, reads or creates the widget's state in the session
// store, emits a render message and returns the widget's current value.
type Builder struct {
	run      *run
	cursor   *Cursor
	clearing bool
}

// New returns the root builder for one page run.
func New(ctx context.Context, sessionID, pageID string, state *widget.Store, emitter Emitter) *Builder {
	return &Builder{
		run: &run{
			ctx:       ctx,
			sessionID: sessionID,
			pageID:    pageID,
			state:     state,
			emitter:   emitter,
		},
		cursor: NewCursor(nil),
	}
}

// Context returns the context of the page run.
func (b *Builder) Context() context.Context { return b.run.ctx }

// SessionID returns the session the page runs for.
func (b *Builder) SessionID() string { return b.run.sessionID }

// PageID returns the id of the running page.
func (b *Builder) PageID() string { return b.run.pageID }

// Err returns the first error hit while emitting render messages, if any.
// The runtime fails the run when it is non-nil.
func (b *Builder) Err() error {
	b.run.mu.Lock()
	defer b.run.mu.Unlock()
	return b.run.err
}

func (b *Builder) fail(err error) {
	b.run.mu.Lock()
	if b.run.err == nil {
		b.run.err = err
	}
	b.run.mu.Unlock()
}

func (b *Builder) widgetID(kind widget.Kind, path []int) string {
	return ident.WidgetID(b.run.pageID, kind.String(), path)
}

func (b *Builder) render(path []int, st widget.State) {
	ws, err := widget.Encode(st)
	if err != nil {
		b.fail(err)
		return
	}
	if b.run.emitter == nil {
		return
	}
	err = b.run.emitter.Emit(b.run.ctx, &protocol.RenderWidget{
		SessionID: b.run.sessionID,
		PageID:    b.run.pageID,
		Path:      path,
		Widget:    ws,
	})
	if err != nil {
		b.fail(err)
	}
}

// place stores st, renders it at path and advances the cursor.
func (b *Builder) place(path []int, st widget.State) {
	b.run.state.Set(st)
	b.render(path, st)
	b.cursor.Next()
}

// Button renders a button and reports whether it was clicked in the
// interaction that caused this run.
func (b *Builder) Button(label string, opts ...Option) bool {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindButton, path)

	st, ok := b.run.state.Button(id)
	if !ok {
		st = &widget.ButtonState{ID: id}
	}
	st.Label = label
	st.Disabled = o.disabled
	clicked := st.Clicked && !st.Disabled

	b.place(path, st)
	return clicked
}

// TextInput renders a single-line text input and returns its value.
func (b *Builder) TextInput(label string, opts ...Option) string {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindTextInput, path)

	def := ""
	if o.defaultText != nil {
		def = *o.defaultText
	}
	st, ok := b.run.state.TextInput(id)
	if !ok {
		st = &widget.TextInputState{ID: id, Value: def}
	}
	st.Label = label
	st.Placeholder = o.placeholder
	st.MaxLength = o.maxLength
	if st.MaxLength > 0 && len([]rune(st.Value)) > st.MaxLength {
		st.Value = string([]rune(st.Value)[:st.MaxLength])
	}

	value := st.Value
	if b.clearing {
		st.Value = def
	}
	b.place(path, st)
	return value
}

// NumberInput renders a number input and returns its value, clamped to
// the configured range.
func (b *Builder) NumberInput(label string, opts ...Option) float64 {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindNumberInput, path)

	def := 0.0
	if o.defaultNumber != nil {
		def = *o.defaultNumber
	}
	st, ok := b.run.state.NumberInput(id)
	if !ok {
		st = &widget.NumberInputState{ID: id, Value: def}
	}
	st.Label = label
	st.Step = o.step
	if o.hasRange {
		st.Min, st.Max = o.min, o.max
		st.Value = math.Min(math.Max(st.Value, o.min), o.max)
	} else {
		st.Min, st.Max = math.Inf(-1), math.Inf(1)
	}

	value := st.Value
	if b.clearing {
		st.Value = def
	}
	b.place(path, st)
	return value
}

// Checkbox renders a checkbox and returns whether it is checked.
func (b *Builder) Checkbox(label string, opts ...Option) bool {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindCheckbox, path)

	def := false
	if o.defaultBool != nil {
		def = *o.defaultBool
	}
	st, ok := b.run.state.Checkbox(id)
	if !ok {
		st = &widget.CheckboxState{ID: id, Checked: def}
	}
	st.Label = label

	value := st.Checked
	if b.clearing {
		st.Checked = def
	}
	b.place(path, st)
	return value
}

// Select renders a single-choice select over choices and returns the chosen
// value. A value no longer among choices falls back to the default.
func (b *Builder) Select(label string, choices []string, opts ...Option) string {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindSelect, path)

	def := ""
	if o.defaultText != nil {
		def = *o.defaultText
	} else if len(choices) > 0 {
		def = choices[0]
	}
	st, ok := b.run.state.Select(id)
	if !ok {
		st = &widget.SelectState{ID: id, Value: def}
	}
	st.Label = label
	st.Options = append([]string(nil), choices...)
	if !contains(st.Options, st.Value) {
		st.Value = def
	}

	value := st.Value
	if b.clearing {
		st.Value = def
	}
	b.place(path, st)
	return value
}

// Text renders static text.
func (b *Builder) Text(body string) {
	path := b.cursor.Path()
	id := b.widgetID(widget.KindText, path)

	st, ok := b.run.state.Text(id)
	if !ok {
		st = &widget.TextState{ID: id}
	}
	st.Body = body
	b.place(path, st)
}

// Table renders a read-only table.
func (b *Builder) Table(columns []string, rows [][]string) {
	path := b.cursor.Path()
	id := b.widgetID(widget.KindTable, path)

	st, ok := b.run.state.Table(id)
	if !ok {
		st = &widget.TableState{ID: id}
	}
	st.Columns = columns
	st.Rows = rows
	b.place(path, st)
}

// Form renders a form and returns a builder for its contents plus whether
// the form was submitted in the interaction that caused this run.
func (b *Builder) Form(label string, opts ...Option) (*Builder, bool) {
	o := collect(opts)
	path := b.cursor.Path()
	id := b.widgetID(widget.KindForm, path)

	st, ok := b.run.state.Form(id)
	if !ok {
		st = &widget.FormState{ID: id}
	}
	st.Label = label
	st.ClearOnSubmit = o.clearOnSubmit
	submitted := st.Submitted

	inner := &Builder{
		run:      b.run,
		cursor:   b.cursor.Child(),
		clearing: b.clearing || (submitted && st.ClearOnSubmit),
	}
	b.place(path, st)
	return inner, submitted
}

// Columns lays out n side-by-side columns and returns one builder per
// column. Column i addresses its children under [...path, i].
//
// Weights are normalized to sum to 1; without weights every column gets
// 1/n. When n <= 0 or the weights are invalid (wrong count, zero, negative
// or not finite) Columns stores and renders nothing, does not advance the
// cursor, and returns nil.
func (b *Builder) Columns(n int, opts ...Option) []*Builder {
	o := collect(opts)
	weights, ok := normalizeWeights(n, o.weights)
	if !ok {
		return nil
	}

	path := b.cursor.Path()
	id := b.widgetID(widget.KindColumns, path)

	st, found := b.run.state.Columns(id)
	if !found {
		st = &widget.ColumnsState{ID: id}
	}
	st.Weights = weights

	cols := make([]*Builder, n)
	for i := range cols {
		cols[i] = &Builder{
			run:      b.run,
			cursor:   b.cursor.Child(i),
			clearing: b.clearing,
		}
	}
	b.place(path, st)
	return cols
}

func normalizeWeights(n int, raw []float64) ([]float64, bool) {
	if n <= 0 {
		return nil, false
	}
	out := make([]float64, n)
	if len(raw) == 0 {
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out, true
	}
	if len(raw) != n {
		return nil, false
	}
	var sum float64
	for _, w := range raw {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, false
		}
		sum += w
	}
	for i, w := range raw {
		out[i] = w / sum
	}
	return out, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
