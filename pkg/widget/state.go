package widget

// State is one widget's state. Implementations are pointers so the builder
// can update field values in place across reruns; the id never changes.
type State interface {
	WidgetID() string
	Kind() Kind
}

// ButtonState is edge-triggered: Clicked is true only for the rerun the
// click caused.
type ButtonState struct {
	ID       string
	Label    string
	Disabled bool
	Clicked  bool
}

type TextInputState struct {
	ID          string
	Label       string
	Placeholder string
	MaxLength   int
	Value       string
}

type NumberInputState struct {
	ID    string
	Label string
	Min   float64
	Max   float64
	Step  float64
	Value float64
}

type CheckboxState struct {
	ID      string
	Label   string
	Checked bool
}

type SelectState struct {
	ID      string
	Label   string
	Options []string
	Value   string
}

type TextState struct {
	ID   string
	Body string
}

type TableState struct {
	ID      string
	Columns []string
	Rows    [][]string
}

// FormState is edge-triggered like ButtonState: Submitted is true only for
// the rerun the submit caused.
type FormState struct {
	ID            string
	Label         string
	ClearOnSubmit bool
	Submitted     bool
}

// ColumnsState holds normalized column weights that sum to 1.
type ColumnsState struct {
	ID      string
	Weights []float64
}

func (s *ButtonState) WidgetID() string      { return s.ID }
func (s *TextInputState) WidgetID() string   { return s.ID }
func (s *NumberInputState) WidgetID() string { return s.ID }
func (s *CheckboxState) WidgetID() string    { return s.ID }
func (s *SelectState) WidgetID() string      { return s.ID }
func (s *TextState) WidgetID() string        { return s.ID }
func (s *TableState) WidgetID() string       { return s.ID }
func (s *FormState) WidgetID() string        { return s.ID }
func (s *ColumnsState) WidgetID() string     { return s.ID }

func (*ButtonState) Kind() Kind      { return KindButton }
func (*TextInputState) Kind() Kind   { return KindTextInput }
func (*NumberInputState) Kind() Kind { return KindNumberInput }
func (*CheckboxState) Kind() Kind    { return KindCheckbox }
func (*SelectState) Kind() Kind      { return KindSelect }
func (*TextState) Kind() Kind        { return KindText }
func (*TableState) Kind() Kind       { return KindTable }
func (*FormState) Kind() Kind        { return KindForm }
func (*ColumnsState) Kind() Kind     { return KindColumns }
