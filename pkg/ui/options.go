package ui

// Option configures a widget call. Options that do not apply to a widget
// kind are ignored by it.
type Option func(*options)

type options struct {
	disabled      bool
	placeholder   string
	maxLength     int
	min, max      float64
	step          float64
	hasRange      bool
	defaultText   *string
	defaultNumber *float64
	defaultBool   *bool
	clearOnSubmit bool
	weights       []float64
}

func collect(opts []Option) options {
	o := options{step: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Disabled renders a button disabled.
func Disabled() Option {
	return func(o *options) { o.disabled = true }
}

// WithPlaceholder sets a text input placeholder.
func WithPlaceholder(s string) Option {
	return func(o *options) { o.placeholder = s }
}

// WithMaxLength limits a text input's length. Zero means unlimited.
func WithMaxLength(n int) Option {
	return func(o *options) { o.maxLength = n }
}

// WithRange bounds a number input.
func WithRange(min, max float64) Option {
	return func(o *options) {
		o.min, o.max, o.hasRange = min, max, true
	}
}

// WithStep sets a number input's step. Default 1.
func WithStep(step float64) Option {
	return func(o *options) { o.step = step }
}

// WithDefaultText sets the initial value of a text input or select.
func WithDefaultText(s string) Option {
	return func(o *options) { o.defaultText = &s }
}

// WithDefaultNumber sets the initial value of a number input.
func WithDefaultNumber(v float64) Option {
	return func(o *options) { o.defaultNumber = &v }
}

// WithDefaultChecked sets the initial value of a checkbox.
func WithDefaultChecked(v bool) Option {
	return func(o *options) { o.defaultBool = &v }
}

// ClearOnSubmit resets a form's inputs to their defaults after a submit.
// The run that handles the submit still sees the submitted values.
func ClearOnSubmit() Option {
	return func(o *options) { o.clearOnSubmit = true }
}

// WithWeights sets relative column widths. The count must equal the number
// of columns and every weight must be positive.
func WithWeights(w ...float64) Option {
	return func(o *options) { o.weights = w }
}
