/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package status

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jpillora/backoff"
	"github.com/muesli/termenv"

	"stash.kopano.io/kgol/contactrelay/internal/ipc"
	"stash.kopano.io/kgol/contactrelay/relay"
)

// DefaultFetchAttempts is how often the status is read before giving up.
var DefaultFetchAttempts = 4

type errMsg error

type statusMsg *relay.Status

type model struct {
	ctx   context.Context
	fetch func() (*relay.Status, error)

	spinner spinner.Model

	quitting bool

	status *relay.Status
	err    error
}

func initialModel(ctx context.Context) *model {
	s := spinner.New()
	s.Spinner = spinner.Line
	return &model{
		ctx:   ctx,
		fetch: ipc.GetStatus,

		spinner: s,
	}
}

func (m *model) getStatus() tea.Msg {
	bo := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
	}

	for {
		s, err := m.fetch()
		if err == nil {
			return statusMsg(s)
		}

		if int(bo.Attempt())+1 >= DefaultFetchAttempts {
			return errMsg(err)
		}
		log.Println(err.Error())

		select {
		case <-m.ctx.Done():
			return errMsg(m.ctx.Err())
		case <-time.After(bo.Duration()):
		}
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.getStatus,
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			return m, nil
		}

	case errMsg:
		m.err = msg
		return m, tea.Quit

	case statusMsg:
		m.status = msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m *model) View() string {
	if m.err != nil || m.status != nil {
		// Results are printed after the program ended.
		return ""
	}

	s := termenv.String(m.spinner.View()).String()
	str := fmt.Sprintf("%s Fetching relayd status ...", s)

	if m.quitting {
		return str + "\n"
	}
	return str
}
