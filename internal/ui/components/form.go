// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"encoding/json"
	"maps"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

// =============================================================================
// FORM COMPONENT
// =============================================================================

// FieldKind selects how a field is edited and rendered.
type FieldKind int

const (
	TextField FieldKind = iota
	CheckboxField
)

// Checkbox values as captured.
const (
	checkedValue   = "true"
	uncheckedValue = "false"
)

// FieldSpec describes one field.
type FieldSpec struct {
	Name        string
	Label       string
	Placeholder string
	CharLimit   int
	Kind        FieldKind
	Validators  []Validator
}

// Form is a titled group of fields whose values can be captured by the
// transient-state registry from any goroutine.
type Form struct {
	Key   string
	Title string

	specs  []FieldSpec
	inputs []textinput.Model
	focus  int
	theme  *styles.Theme

	// touched shows field errors; set by a rejected submit.
	touched bool

	// revision counts value changes.
	revision uint64

	// values mirrors the inputs for Capture, which runs off the UI goroutine.
	mu     sync.RWMutex
	values map[string]string
}

// NewForm creates a form with the given fields. No field is focused.
func NewForm(key, title string, theme *styles.Theme, fields ...FieldSpec) *Form {
	f := &Form{
		Key:    key,
		Title:  title,
		specs:  fields,
		inputs: make([]textinput.Model, len(fields)),
		focus:  -1,
		theme:  theme,
		values: make(map[string]string, len(fields)),
	}
	for i, spec := range fields {
		in := textinput.New()
		in.Placeholder = spec.Placeholder
		in.Prompt = ""
		if spec.CharLimit > 0 {
			in.CharLimit = spec.CharLimit
		}
		if spec.Kind == CheckboxField {
			in.SetValue(uncheckedValue)
		}
		f.inputs[i] = in
	}
	f.sync()
	f.revision = 0
	return f
}

// Capture returns the current field values. It implements registry.Source.
func (f *Form) Capture() (any, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.values), nil
}

// Restore applies a snapshot previously produced by Capture. Unknown fields
// are ignored.
func (f *Form) Restore(raw json.RawMessage) error {
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return err
	}
	f.SetValues(values)
	return nil
}

// Values returns the current field values.
func (f *Form) Values() map[string]string {
	v, _ := f.Capture()
	return v.(map[string]string)
}

// SetValues sets fields by name.
func (f *Form) SetValues(values map[string]string) {
	for i, spec := range f.specs {
		v, ok := values[spec.Name]
		if !ok {
			continue
		}
		if spec.Kind == CheckboxField {
			v = checkboxValue(v == checkedValue)
		}
		f.inputs[i].SetValue(v)
	}
	f.sync()
}

// Reset empties every field and hides validation errors.
func (f *Form) Reset() {
	for i, spec := range f.specs {
		f.inputs[i].Reset()
		if spec.Kind == CheckboxField {
			f.inputs[i].SetValue(uncheckedValue)
		}
	}
	f.touched = false
	f.sync()
}

// Empty reports whether no text is entered and no box is checked.
func (f *Form) Empty() bool {
	for i, spec := range f.specs {
		v := f.inputs[i].Value()
		if spec.Kind == CheckboxField {
			if v == checkedValue {
				return false
			}
			continue
		}
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Revision increases whenever a field value changes.
func (f *Form) Revision() uint64 {
	return f.revision
}

func (f *Form) sync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, spec := range f.specs {
		v := f.inputs[i].Value()
		if old, ok := f.values[spec.Name]; !ok || old != v {
			f.values[spec.Name] = v
			f.revision++
		}
	}
}

func checkboxValue(on bool) string {
	if on {
		return checkedValue
	}
	return uncheckedValue
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate runs every field's validators and returns the failures in field
// order, at most one per field.
func (f *Form) Validate() []FieldError {
	var errs []FieldError
	for i, spec := range f.specs {
		v := f.inputs[i].Value()
		for _, check := range spec.Validators {
			if err := check(v); err != nil {
				errs = append(errs, FieldError{Field: spec.Name, Label: spec.Label, Err: err})
				break
			}
		}
	}
	return errs
}

// Valid reports whether every field passes validation.
func (f *Form) Valid() bool {
	return len(f.Validate()) == 0
}

// MarkTouched makes View show field errors.
func (f *Form) MarkTouched() {
	f.touched = true
}

// =============================================================================
// FOCUS
// =============================================================================

// Focus focuses field i, clamped to the field range.
func (f *Form) Focus(i int) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	f.Blur()
	f.focus = min(max(i, 0), len(f.inputs)-1)
	return f.inputs[f.focus].Focus()
}

// FocusLast focuses the last field.
func (f *Form) FocusLast() tea.Cmd {
	return f.Focus(len(f.inputs) - 1)
}

// Blur removes focus from the form.
func (f *Form) Blur() {
	if f.focus >= 0 {
		f.inputs[f.focus].Blur()
	}
	f.focus = -1
}

// Focused reports whether any field has focus.
func (f *Form) Focused() bool {
	return f.focus >= 0
}

// FocusedField returns the index of the focused field, or -1.
func (f *Form) FocusedField() int {
	return f.focus
}

// Next moves focus to the next field. It returns false when focus was on the
// last field, leaving the form blurred.
func (f *Form) Next() (bool, tea.Cmd) {
	if f.focus+1 >= len(f.inputs) {
		f.Blur()
		return false, nil
	}
	return true, f.Focus(f.focus + 1)
}

// Prev moves focus to the previous field. It returns false when focus was on
// the first field, leaving the form blurred.
func (f *Form) Prev() (bool, tea.Cmd) {
	if f.focus <= 0 {
		f.Blur()
		return false, nil
	}
	return true, f.Focus(f.focus - 1)
}

// OnLastField reports whether the last field has focus.
func (f *Form) OnLastField() bool {
	return f.focus >= 0 && f.focus == len(f.inputs)-1
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Update forwards msg to the focused field. Space or x toggles a checkbox.
func (f *Form) Update(msg tea.Msg) tea.Cmd {
	if f.focus < 0 {
		return nil
	}
	if f.specs[f.focus].Kind == CheckboxField {
		if k, ok := msg.(tea.KeyMsg); ok && (k.Type == tea.KeySpace || k.String() == "x") {
			in := &f.inputs[f.focus]
			in.SetValue(checkboxValue(in.Value() != checkedValue))
			f.sync()
		}
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	f.sync()
	return cmd
}

// View renders the form at the given outer width.
func (f *Form) View(width int) string {
	t := f.theme
	boxStyle := t.FormBox
	if f.Focused() {
		boxStyle = t.FormBoxFocused
	}
	outer := max(width-boxStyle.GetHorizontalBorderSize(), 20)
	inner := outer - boxStyle.GetHorizontalPadding()

	var failed map[string]FieldError
	if f.touched {
		failed = make(map[string]FieldError)
		for _, e := range f.Validate() {
			failed[e.Field] = e
		}
	}

	rows := []string{t.FormTitle.Render(f.Title), ""}
	for i, spec := range f.specs {
		labelStyle := t.FieldLabel
		if i == f.focus {
			labelStyle = t.FieldLabelFocused
		}

		var row string
		if spec.Kind == CheckboxField {
			box := "[ ]"
			if f.inputs[i].Value() == checkedValue {
				box = "[x]"
			}
			row = labelStyle.UnsetWidth().Render(box + " " + spec.Label)
		} else {
			label := labelStyle.Render(spec.Label)
			in := f.inputs[i]
			in.Width = max(inner-lipgloss.Width(label)-2, 8)
			row = label + " " + in.View()
		}
		rows = append(rows, row)

		if e, ok := failed[spec.Name]; ok {
			rows = append(rows, t.FieldError.Render("  "+e.Error()))
		}
	}
	return boxStyle.Width(outer).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
