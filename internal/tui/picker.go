// internal/tui/picker.go
//
// A small bubbletea program that lets the user choose which command of a
// model run to execute when none was given on the command line.

package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("tui: selection cancelled")

var pickerStyle = lipgloss.NewStyle().Margin(1, 2)

// CommandOption is one entry in the picker.
type CommandOption struct {
	Name string
	Type string
}

func (o CommandOption) Title() string { return o.Name }
func (o CommandOption) Description() string {
	if o.Type == "" {
		return "no type configured"
	}
	return o.Type
}
func (o CommandOption) FilterValue() string { return o.Name }

// Picker is the bubbletea model behind Pick.
type Picker struct {
	list      list.Model
	choice    string
	cancelled bool
}

// NewPicker builds a picker over options.
func NewPicker(title string, options []CommandOption) *Picker {
	items := make([]list.Item, len(options))
	for i, opt := range options {
		items[i] = opt
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = title
	menu.SetShowStatusBar(false)
	return &Picker{list: menu}
}

// Init is called once when the program starts.
func (p *Picker) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := pickerStyle.GetFrameSize()
		p.list.SetSize(max(0, msg.Width-h), max(0, msg.Height-v))
		return p, nil
	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			p.cancelled = true
			return p, tea.Quit
		case "enter":
			if item, ok := p.list.SelectedItem().(CommandOption); ok {
				p.choice = item.Name
				return p, tea.Quit
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

// View renders the list until a choice is made.
func (p *Picker) View() string {
	if p.choice != "" || p.cancelled {
		return ""
	}
	return pickerStyle.Render(p.list.View())
}

// Choice returns the selected command name, if any.
func (p *Picker) Choice() (string, bool) {
	return p.choice, p.choice != ""
}

// Pick runs the picker on the terminal and returns the chosen command.
func Pick(title string, options []CommandOption, opts ...tea.ProgramOption) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("tui: no commands to choose from")
	}
	final, err := tea.NewProgram(NewPicker(title, options), opts...).Run()
	if err != nil {
		return "", fmt.Errorf("tui: run picker: %w", err)
	}
	picker, ok := final.(*Picker)
	if !ok {
		return "", fmt.Errorf("tui: unexpected model %T", final)
	}
	choice, ok := picker.Choice()
	if !ok {
		return "", ErrCancelled
	}
	return choice, nil
}
