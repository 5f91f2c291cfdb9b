package commands

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"kubecompat/lib/history"
	"kubecompat/lib/ledger"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// kubeRange renders a descending list of minors as "oldest - newest".
func kubeRange(kube []string) string {
	switch len(kube) {
	case 0:
		return "-"
	case 1:
		return kube[0]
	}
	return kube[len(kube)-1] + " - " + kube[0]
}

func renderLedger(w io.Writer, l ledger.Ledger) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Version", "Kubernetes", "Chart", "EOL", "Images"})
	for _, v := range l.Versions {
		t.AppendRow(table.Row{
			v.Version,
			strings.Join(v.Kube, ", "),
			orDash(v.ChartVersion),
			orDash(v.EOLAt),
			len(v.Images),
		})
	}
	t.Render()
}

type ledgerSummary struct {
	App    string
	Ledger ledger.Ledger
}

func renderLedgerList(w io.Writer, ledgers []ledgerSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Application", "Versions", "Latest", "Kubernetes", "Chart"})
	for _, s := range ledgers {
		latest, kube := "-", "-"
		if len(s.Ledger.Versions) > 0 {
			latest = s.Ledger.Versions[0].Version
			kube = kubeRange(s.Ledger.Versions[0].Kube)
		}
		t.AppendRow(table.Row{
			s.App,
			len(s.Ledger.Versions),
			latest,
			kube,
			orDash(s.Ledger.ChartName),
		})
	}
	t.Render()
}

func renderRuns(w io.Writer, runs []history.Run) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Batch", "Application", "Started", "Duration", "Candidates", "Versions", "Error"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			orDash(run.Batch),
			run.App,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			run.Candidates,
			run.Versions,
			orDash(run.Error),
		})
	}
	t.Render()
}
