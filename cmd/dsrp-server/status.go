/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
	spfcbr "github.com/spf13/cobra"

	liblog "github.com/nabbar/dsrp/logger"
	loghcl "github.com/nabbar/dsrp/logger/hashicorp"
)

// pollInterval is how often the status dashboard re-dials the control
// listener. A real introspection RPC (client/channel/connection counts
// pulled from the running relayserver.Handler) is out of reach of a
// separate CLI invocation without one; until that wire message exists,
// this dashboard can only report reachability, not live counts.
const pollInterval = 2 * time.Second

type statusTick time.Time

type statusModel struct {
	addr      string
	dbg       hclog.Logger
	reachable bool
	lastErr   string
	checked   int
	started   time.Time
}

func (m *statusModel) Init() tea.Cmd {
	m.started = time.Now()
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return statusTick(t) })
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case statusTick:
		m.checked++
		conn, err := net.DialTimeout("tcp", m.addr, time.Second)
		if err != nil {
			m.reachable = false
			m.lastErr = err.Error()
			m.dbg.Debug("control listener unreachable", "addr", m.addr, "error", err)
		} else {
			m.reachable = true
			m.lastErr = ""
			_ = conn.Close()
			m.dbg.Debug("control listener reachable", "addr", m.addr)
		}
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return statusTick(t) })
	}
	return m, nil
}

func (m *statusModel) View() string {
	state := "unreachable"
	if m.reachable {
		state = "reachable"
	}
	view := fmt.Sprintf("dsrp-server status: %s\ncontrol listener: %s\nchecks performed: %d\nuptime: %s\n",
		state, m.addr, m.checked, time.Since(m.started).Round(time.Second))
	if m.lastErr != "" {
		view += fmt.Sprintf("last error: %s\n", m.lastErr)
	}
	view += "\n(press q to quit)\n"
	return view
}

func newStatusCommand(defaultAddr string) *spfcbr.Command {
	var addr string

	cmd := &spfcbr.Command{
		Use:   "status",
		Short: "live dashboard polling the control listener's reachability",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			if addr == "" {
				addr = defaultAddr
			}

			dbgLog := liblog.New(context.Background())
			dbg := loghcl.New(func() liblog.Logger { return dbgLog })

			m := &statusModel{addr: addr, dbg: dbg}
			p := tea.NewProgram(m)
			return p.Start()
		},
	}
	cmd.Flags().StringVarP(&addr, "listen", "l", defaultAddr, "control listener address to poll")
	return cmd
}
