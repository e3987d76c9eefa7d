package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jaxxstorm/dnstiming/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// RenderTrialLine is the per-trial result line.
func RenderTrialLine(rec model.TrialRecord) string {
	if rec.Error != "" {
		return failureStyle.Render(fmt.Sprintf("%d %s: error: %s", rec.Index, rec.Strategy, rec.Error))
	}
	addrs := make([]string, 0, len(rec.Addresses))
	for _, a := range rec.Addresses {
		addrs = append(addrs, fmt.Sprintf("%s/v%d", a.Address, a.Family))
	}
	line := fmt.Sprintf("%d %s: %s (%s)", rec.Index, rec.Strategy, strings.Join(addrs, ", "), rec.Duration)
	if !rec.Recorded {
		line += " dropped"
	}
	return stepStyle.Render(line)
}

type statistic struct {
	label string
	value func(model.Summary) model.Seconds
}

var benchStatistics = []statistic{
	{"max", func(s model.Summary) model.Seconds { return s.Max }},
	{"min", func(s model.Summary) model.Seconds { return s.Min }},
	{"p99", func(s model.Summary) model.Seconds { return s.P99 }},
	{"p90", func(s model.Summary) model.Seconds { return s.P90 }},
	{"p50", func(s model.Summary) model.Seconds { return s.P50 }},
}

// RenderBenchPretty groups strategies under each statistic, values in seconds.
func RenderBenchPretty(report model.BenchReport) string {
	lines := []string{
		titleStyle.Render("dnstiming bench"),
		labelStyle.Render(fmt.Sprintf("host=%s trials=%d all=%t elapsed=%s", report.Host, report.Trials, report.All, report.Elapsed)),
		"",
	}

	width := 0
	for _, s := range report.Strategies {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}

	for _, stat := range benchStatistics {
		for _, s := range report.Strategies {
			line := fmt.Sprintf("%-*s %s %s", width, s.Name, stat.label, formatSeconds(stat.value(s.Summary)))
			lines = append(lines, stepStyle.Render(line))
		}
		lines = append(lines, "")
	}

	for _, s := range report.Strategies {
		summary := fmt.Sprintf("%-*s samples=%d failures=%d dropped=%d", width, s.Name, s.Samples, s.Failures, s.Dropped)
		if s.Failures > 0 {
			lines = append(lines, failureStyle.Render(summary))
		} else {
			lines = append(lines, successStyle.Render(summary))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderPhasesPretty prints phase durations in milliseconds; phases that did
// not happen show as "-".
func RenderPhasesPretty(report model.PhaseReport) string {
	lines := []string{
		titleStyle.Render("dnstiming phases"),
		labelStyle.Render(fmt.Sprintf("url=%s strategy=%s", report.URL, report.Strategy)),
		"",
	}
	if report.StatusCode != 0 {
		lines = append(lines, stepStyle.Render(fmt.Sprintf("status %d", report.StatusCode)))
	}
	if len(report.Addresses) > 0 {
		addrs := make([]string, 0, len(report.Addresses))
		for _, a := range report.Addresses {
			addrs = append(addrs, a.Address)
		}
		lines = append(lines, stepStyle.Render("addresses "+strings.Join(addrs, ", ")))
	}

	phases := []struct {
		label string
		value *float64
	}{
		{"dnsLookup", report.Timings.DNSLookup},
		{"tcpConnection", report.Timings.TCPConnection},
		{"tlsHandshake", report.Timings.TLSHandshake},
		{"total", report.Timings.Total},
	}
	for _, p := range phases {
		lines = append(lines, stepStyle.Render(fmt.Sprintf("%-14s %s", p.label, formatMillis(p.value))))
	}

	lines = append(lines, "")
	summary := strings.TrimSpace(fmt.Sprintf("%s %s", report.Failure.Classification, report.Failure.Summary))
	if report.Failure.Classification == "SUCCESS" {
		lines = append(lines, successStyle.Render(summary))
	} else {
		lines = append(lines, failureStyle.Render(summary))
	}
	if len(report.Failure.Hints) > 0 {
		lines = append(lines, "Hints:")
		for _, hint := range report.Failure.Hints {
			lines = append(lines, "- "+hint)
		}
	}
	return strings.Join(lines, "\n")
}

func formatSeconds(v model.Seconds) string {
	if !v.Defined() {
		return "NaN"
	}
	return fmt.Sprintf("%.6fs", float64(v))
}

func formatMillis(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3fms", *v)
}
