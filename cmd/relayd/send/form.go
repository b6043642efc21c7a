/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package send

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"

	"stash.kopano.io/kgol/contactrelay/client"
	"stash.kopano.io/kgol/contactrelay/contact"
)

const (
	focusName = iota
	focusEmail
	focusMessage
	focusSubmit
)

type snapshotMsg client.Snapshot

type submitDoneMsg struct {
	err error
}

type formModel struct {
	ctx     context.Context
	form    *client.Form
	profile termenv.Profile

	inputs  []textinput.Model
	focus   int
	spinner spinner.Model

	snapshot client.Snapshot
	hint     string
}

func newFormModel(ctx context.Context, form *client.Form, fields contact.Message, profile termenv.Profile) *formModel {
	newInput := func(prompt, placeholder string, limit int, value string) textinput.Model {
		input := textinput.New()
		input.Prompt = prompt
		input.Placeholder = placeholder
		input.CharLimit = limit
		input.SetValue(value)
		return input
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := &formModel{
		ctx:     ctx,
		form:    form,
		profile: profile,

		inputs: []textinput.Model{
			newInput("Name:    ", "Your name", contact.MaxNameLength, fields.Name),
			newInput("Email:   ", "you@example.com", contact.MaxEmailLength, fields.Email),
			newInput("Message: ", "Your message", contact.MaxMessageLength, fields.Message),
		},
		spinner: s,

		snapshot: form.Snapshot(),
	}
	m.inputs[focusName].Focus()

	return m
}

func (m *formModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *formModel) setFocus(focus int) tea.Cmd {
	if focus < focusName {
		focus = focusSubmit
	} else if focus > focusSubmit {
		focus = focusName
	}
	m.focus = focus

	var cmd tea.Cmd
	for i := range m.inputs {
		if i == focus {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *formModel) submit() tea.Cmd {
	if !m.form.CanSubmit() {
		return nil
	}
	m.hint = ""

	m.form.SetFields(contact.Message{
		Name:    strings.TrimSpace(m.inputs[focusName].Value()),
		Email:   strings.TrimSpace(m.inputs[focusEmail].Value()),
		Message: m.inputs[focusMessage].Value(),
	})

	form, ctx := m.form, m.ctx
	return func() tea.Msg {
		return submitDoneMsg{err: form.Submit(ctx)}
	}
}

func (m *formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m, m.setFocus(m.focus + 1)
		case "shift+tab", "up":
			return m, m.setFocus(m.focus - 1)
		case "enter":
			if m.focus != focusSubmit {
				return m, m.setFocus(m.focus + 1)
			}
			return m, m.submit()
		}
		if !m.snapshot.CanSubmit() {
			// Fields are locked while the message is in flight.
			return m, nil
		}

	case snapshotMsg:
		m.snapshot = client.Snapshot(msg)
		switch m.snapshot.State {
		case client.StateSubmitting:
			return m, m.spinner.Tick
		case client.StateSucceeded:
			for i := range m.inputs {
				m.inputs[i].Reset()
			}
			return m, m.setFocus(focusName)
		}
		return m, nil

	case submitDoneMsg:
		if errors.Is(msg.err, client.ErrIncomplete) {
			m.hint = "Please fill in all fields."
		}
		return m, nil

	case spinner.TickMsg:
		if m.snapshot.State != client.StateSubmitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.focus == focusSubmit {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *formModel) View() string {
	var b strings.Builder

	b.WriteString(termenv.String("Send a message").Bold().String())
	b.WriteString("\n\n")
	for i := range m.inputs {
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	button := "[ Send ]"
	switch {
	case !m.snapshot.CanSubmit():
		button = m.spinner.View() + " Sending ..."
	case m.focus == focusSubmit:
		button = m.profile.String(button).Bold().Reverse().String()
	}
	b.WriteString(button)
	b.WriteString("\n\n")

	if m.snapshot.Notice != "" {
		color := m.profile.Color("1")
		if m.snapshot.State == client.StateSucceeded {
			color = m.profile.Color("2")
		}
		b.WriteString(m.profile.String(m.snapshot.Notice).Foreground(color).String())
		b.WriteString("\n")
	}
	if m.hint != "" {
		b.WriteString(m.hint)
		b.WriteString("\n")
	}

	b.WriteString(m.profile.String("tab: next field • enter: next/send • esc: quit").Faint().String())
	b.WriteString("\n")

	return b.String()
}

// runInteractive shows the form until the user quits. Every form transition
// is forwarded into the program, including the timer driven success reset.
func runInteractive(ctx context.Context, submitter client.Submitter, fields contact.Message) error {
	var p *tea.Program

	form := client.NewForm(submitter, client.WithOnChange(func(snapshot client.Snapshot) {
		p.Send(snapshotMsg(snapshot))
	}))

	model := newFormModel(ctx, form, fields, termenv.ColorProfile())
	p = tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("form failed: %w", err)
	}
	return nil
}
