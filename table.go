package main

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/synodriver/aria2link/aria2"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// parseCount reads aria2's decimal string numbers. Missing or malformed
// values count as zero.
func parseCount(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

func humanBytes(s string) string {
	return humanize.IBytes(parseCount(s))
}

func humanSpeed(s string) string {
	n := parseCount(s)
	if n == 0 {
		return "-"
	}
	return humanize.IBytes(n) + "/s"
}

func progress(j aria2.Job) string {
	total := parseCount(j.TotalLength)
	if total == 0 {
		return "-"
	}
	done := parseCount(j.CompletedLength)
	return strconv.FormatFloat(float64(done)*100/float64(total), 'f', 1, 64) + "%"
}

func renderJobs(list []aria2.Job) string {
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		name := filepath.Base(j.Name())
		if j.ErrorMessage != "" {
			name += " (" + j.ErrorMessage + ")"
		}
		rows = append(rows, []string{
			j.Gid,
			string(j.Status),
			name,
			progress(j),
			humanBytes(j.TotalLength),
			humanSpeed(j.DownloadSpeed),
		})
	}
	return renderTable(
		[]string{"GID", "Status", "Name", "Done", "Size", "Speed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func renderGlobalStat(s aria2.GlobalStat) string {
	return renderTable(
		[]string{"Down", "Up", "Active", "Waiting", "Stopped"},
		[][]string{{
			humanSpeed(s.DownloadSpeed),
			humanSpeed(s.UploadSpeed),
			s.NumActive,
			s.NumWaiting,
			s.NumStoppedTotal,
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderConfig(path string, cfg aria2.Config) string {
	secret := "(none)"
	if cfg.Secret != "" {
		secret = "(set)"
	}
	timeout := aria2.DefaultTimeout.String()
	switch {
	case cfg.Timeout < 0:
		timeout = "off"
	case cfg.Timeout > 0:
		timeout = cfg.Timeout.Round(time.Millisecond).String()
	}
	rows := [][]string{
		{"file", path},
		{"websocket", cfg.WebsocketURL()},
		{"http", cfg.HTTPURL()},
		{"secret", secret},
		{"timeout", timeout},
	}
	return renderTable([]string{"Setting", "Value"}, rows, nil)
}
