package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type field struct {
	label       string
	placeholder string
	value       string
	limit       int
	secret      bool
}

// form is a stack of text inputs with one focused at a time.
type form struct {
	inputs []textinput.Model
	focus  int
}

func newForm(fields ...field) form {
	inputs := make([]textinput.Model, 0, len(fields))
	for i, f := range fields {
		inp := textinput.New()
		inp.Prompt = f.label + ": "
		inp.Placeholder = f.placeholder
		if f.limit > 0 {
			inp.CharLimit = f.limit
		}
		if f.secret {
			inp.EchoMode = textinput.EchoPassword
		}
		inp.SetValue(f.value)
		if i == 0 {
			inp.Focus()
		}
		inputs = append(inputs, inp)
	}
	return form{inputs: inputs}
}

func (f *form) active() bool { return len(f.inputs) > 0 }

func (f *form) focusCmd() tea.Cmd {
	if !f.active() {
		return nil
	}
	return textinput.Blink
}

func (f *form) cycle(backwards bool) tea.Cmd {
	if len(f.inputs) < 2 {
		return nil
	}
	dir := 1
	if backwards {
		dir = -1
	}
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + dir + len(f.inputs)) % len(f.inputs)
	return f.inputs[f.focus].Focus()
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if !f.active() {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// values returns every input's text; missing fields read as empty.
func (f *form) values() []string {
	out := make([]string, 2)
	for i, in := range f.inputs {
		if i < len(out) {
			out[i] = in.Value()
		} else {
			out = append(out, in.Value())
		}
	}
	return out
}

// reset clears all inputs and focuses the first.
func (f *form) reset() {
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.focus = 0
	if f.active() {
		f.inputs[0].Focus()
	}
}

func (f *form) view() string {
	lines := make([]string, 0, len(f.inputs))
	for _, in := range f.inputs {
		lines = append(lines, in.View())
	}
	return strings.Join(lines, "\n")
}
