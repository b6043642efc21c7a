/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package status

import (
	"fmt"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/muesli/termenv"

	"stash.kopano.io/kgol/contactrelay/relay"
)

const prettyTemplate = `
{{- Bold "relayd"}} {{.Version}}
  {{Bold "listen"}}: {{.ListenAddress}}
  {{Bold "provider"}}: {{or .Provider "not set"}}
  {{Bold "uptime"}}: {{Since .StartedAt}}
  {{Bold "in flight"}}: {{.InFlight}}

{{Bold "messages"}}
  {{WithOK "delivered"}}: {{.Delivered}}
  {{Bold "invalid"}}: {{.Invalid}}
  {{- range Failures .Failed}}
  {{WithFailure (printf "failed (%s)" .Kind)}}: {{.Count}}
  {{- end}}
{{- with .LastOutcome}}

{{Bold "last"}}: {{.Result}}{{if .Kind}} ({{.Kind}}){{end}} at {{.At.Format "2006-01-02 15:04:05 MST"}}
{{- end}}
`

type failureCount struct {
	Kind  string
	Count uint64
}

func templateFuncs(p termenv.Profile) template.FuncMap {
	// Define some colors.
	okColor := p.Color("112")
	nokColor := p.Color("196")

	// Subset of the helpers in termenv, so we have better control and can turn
	// of all formatting of the terminal supports ASCII only.
	return template.FuncMap{
		"Bold": func(values ...interface{}) string {
			if p == termenv.Ascii {
				// Do not do any bold, if terminal only supports ASCII.
				return values[0].(string)
			}
			s := termenv.String(values[0].(string))
			return s.Bold().String()
		},
		"WithOK": func(values ...interface{}) string {
			return termenv.String(fmt.Sprintf("%v", values[len(values)-1])).Foreground(okColor).String()
		},
		"WithFailure": func(values ...interface{}) string {
			return termenv.String(fmt.Sprintf("%v", values[len(values)-1])).Foreground(nokColor).String()
		},
		"Since": func(t time.Time) string {
			if t.IsZero() {
				return "unknown"
			}
			return time.Since(t).Truncate(time.Second).String()
		},
		"Failures": func(failed map[string]uint64) []failureCount {
			result := make([]failureCount, 0, len(failed))
			for kind, count := range failed {
				result = append(result, failureCount{Kind: kind, Count: count})
			}
			sort.Slice(result, func(i, j int) bool {
				return result[i].Kind < result[j].Kind
			})
			return result
		},
	}
}

func outputPretty(w io.Writer, p termenv.Profile, status *relay.Status) error {
	// Load helpers and template.
	tpl, err := template.New("tpl").Funcs(templateFuncs(p)).Parse(prettyTemplate)
	if err != nil {
		panic(err)
	}

	// Render.
	return tpl.Execute(w, status)
}
