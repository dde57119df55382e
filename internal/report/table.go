package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/scheduler"
	"github.com/harunnryd/vigil/internal/validator"
)

const timeLayout = "2006-01-02 15:04:05"

type TableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

// list renders rows under a header line with striped rows.
func (f *TableFormatter) list(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
	for _, row := range rows {
		t.Row(row...)
	}
	return t.String()
}

// detail renders key/value pairs, keys in the first column.
func (f *TableFormatter) detail(pairs [][2]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.headerStyle
			}
			return f.cellStyle
		})
	for _, kv := range pairs {
		t.Row(kv[0], kv[1])
	}
	return t.String()
}

func (f *TableFormatter) FormatPlans(plans []*plan.ExecutionPlan) (string, error) {
	if len(plans) == 0 {
		return "No plans found", nil
	}

	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []string{
			p.ID,
			truncateString(p.Title, 30),
			string(p.Status),
			p.Risk.String(),
			strconv.Itoa(len(p.Actions)),
			formatTime(p.UpdatedAt),
		})
	}
	return f.list([]string{"ID", "Title", "Status", "Risk", "Actions", "Updated"}, rows), nil
}

func (f *TableFormatter) FormatPlan(p *plan.ExecutionPlan) (string, error) {
	if p == nil {
		return "No plan found", nil
	}

	header := f.detail([][2]string{
		{"ID", p.ID},
		{"Title", p.Title},
		{"Description", truncateString(p.Description, 60)},
		{"Status", string(p.Status)},
		{"Risk", p.Risk.String()},
		{"Requires backup", yesNo(p.RequiresBackup)},
		{"Requires confirmation", yesNo(p.RequiresConfirmation)},
		{"Estimated", formatSeconds(p.EstimatedTotalSeconds)},
		{"Created", formatTime(p.CreatedAt)},
		{"Updated", formatTime(p.UpdatedAt)},
	})
	if len(p.Actions) == 0 {
		return header + "\nNo actions", nil
	}

	rows := make([][]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		subject := a.TargetPath
		if a.Kind == plan.ActionRunCommand {
			subject = a.Command
		}
		if a.Destination != "" {
			subject += " -> " + a.Destination
		}
		rows = append(rows, []string{
			a.ID,
			string(a.Kind),
			truncateString(subject, 40),
			a.Risk.String(),
			strings.Join(a.Dependencies, ", "),
		})
	}
	return header + "\n" + f.list([]string{"Action", "Kind", "Target", "Risk", "Depends on"}, rows), nil
}

func (f *TableFormatter) FormatValidation(r *validator.Result) (string, error) {
	if r == nil {
		return "No validation result", nil
	}

	header := f.detail([][2]string{
		{"Valid", yesNo(r.Valid)},
		{"Risk", r.Risk.String()},
		{"Complexity", strconv.Itoa(r.ComplexityScore)},
		{"Estimated", formatSeconds(r.EstimatedSeconds)},
		{"Issues", fmt.Sprintf("%d critical, %d error, %d warning, %d info",
			r.Count(validator.SeverityCritical), r.Count(validator.SeverityError),
			r.Count(validator.SeverityWarning), r.Count(validator.SeverityInfo))},
	})

	var b strings.Builder
	b.WriteString(header)
	if len(r.Issues) > 0 {
		rows := make([][]string, 0, len(r.Issues))
		for _, issue := range r.Issues {
			rows = append(rows, []string{
				string(issue.Severity),
				issue.Category,
				issue.ActionID,
				truncateString(issue.Message, 60),
			})
		}
		b.WriteString("\n")
		b.WriteString(f.list([]string{"Severity", "Category", "Action", "Message"}, rows))
	}
	for _, rec := range r.Recommendations {
		b.WriteString("\n- ")
		b.WriteString(rec)
	}
	return b.String(), nil
}

func (f *TableFormatter) FormatRun(l *executor.ExecutionLog) (string, error) {
	if l == nil {
		return "No run found", nil
	}

	pairs := [][2]string{
		{"Run", l.RunID},
		{"Plan", l.PlanID},
		{"Status", string(l.Status)},
		{"Dry run", yesNo(l.DryRun)},
		{"Started", formatTime(l.StartedAt)},
		{"Duration", l.TotalDuration.Round(time.Millisecond).String()},
		{"Results", fmt.Sprintf("%d success, %d failed, %d skipped, %d rolled back",
			l.Count(executor.ResultSuccess), l.Count(executor.ResultFailed),
			l.Count(executor.ResultSkipped), l.Count(executor.ResultRolledBack))},
	}
	if l.BackupDirectory != "" {
		pairs = append(pairs, [2]string{"Backups", l.BackupDirectory})
	}
	if !l.RolledBackAt.IsZero() {
		pairs = append(pairs, [2]string{"Rolled back", formatTime(l.RolledBackAt)})
	}
	if l.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", truncateString(l.ErrorMessage, 60)})
	}
	header := f.detail(pairs)
	if len(l.ActionResults) == 0 {
		return header, nil
	}

	rows := make([][]string, 0, len(l.ActionResults))
	for _, res := range l.ActionResults {
		note := res.Output
		if res.Error != "" {
			note = res.Error
		}
		rows = append(rows, []string{
			res.ActionID,
			string(res.Kind),
			string(res.Result),
			res.Duration.Round(time.Millisecond).String(),
			truncateString(firstLine(note), 50),
		})
	}
	return header + "\n" + f.list([]string{"Action", "Kind", "Result", "Duration", "Detail"}, rows), nil
}

func (f *TableFormatter) FormatRuns(logs []*executor.ExecutionLog) (string, error) {
	if len(logs) == 0 {
		return "No runs found", nil
	}

	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			l.RunID,
			l.PlanID,
			string(l.Status),
			yesNo(l.DryRun),
			formatTime(l.StartedAt),
			l.TotalDuration.Round(time.Millisecond).String(),
		})
	}
	return f.list([]string{"Run", "Plan", "Status", "Dry run", "Started", "Duration"}, rows), nil
}

func (f *TableFormatter) FormatAuditSummary(s *audit.Summary) (string, error) {
	if s == nil {
		return "No audit summary", nil
	}

	integrity := "ok"
	if !s.IntegrityOK {
		integrity = "BROKEN: " + s.IntegrityError
	}
	pairs := [][2]string{
		{"Total events", strconv.Itoa(s.Statistics.TotalEvents)},
		{"Last updated", formatTime(s.Statistics.LastUpdated)},
		{"Chain head", truncateString(s.LastHash, 19)},
		{"Integrity", truncateString(integrity, 70)},
	}
	for _, sev := range []audit.Severity{audit.SeverityInfo, audit.SeverityWarning, audit.SeverityError, audit.SeverityCritical} {
		pairs = append(pairs, [2]string{"Severity " + string(sev), strconv.Itoa(s.Statistics.EventsBySeverity[sev])})
	}
	out := f.detail(pairs)

	if len(s.Statistics.EventsByType) > 0 {
		types := make([]string, 0, len(s.Statistics.EventsByType))
		for t := range s.Statistics.EventsByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		rows := make([][]string, 0, len(types))
		for _, t := range types {
			rows = append(rows, []string{t, strconv.Itoa(s.Statistics.EventsByType[audit.EventType(t)])})
		}
		out += "\n" + f.list([]string{"Event type", "Count"}, rows)
	}

	if len(s.RecentCritical) > 0 {
		rows := make([][]string, 0, len(s.RecentCritical))
		for _, ref := range s.RecentCritical {
			rows = append(rows, []string{formatTime(ref.Timestamp), string(ref.Severity), string(ref.Type), ref.Context["plan_id"]})
		}
		out += "\n" + f.list([]string{"Time", "Severity", "Type", "Plan"}, rows)
	}
	return out, nil
}

func (f *TableFormatter) FormatEvents(events []*audit.Event) (string, error) {
	if len(events) == 0 {
		return "No events found", nil
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.Timestamp),
			string(ev.Severity),
			string(ev.Type),
			ev.Context["plan_id"],
			truncateString(describeDetails(ev.Details), 50),
		})
	}
	return f.list([]string{"Time", "Severity", "Type", "Plan", "Details"}, rows), nil
}

func (f *TableFormatter) FormatPolicy(p safety.Policy) (string, error) {
	return f.detail([][2]string{
		{"Tier", string(p.Tier)},
		{"Max file size", strconv.FormatInt(p.MaxFileSizeBytes, 10) + " bytes"},
		{"Max actions", strconv.Itoa(p.MaxActionsPerPlan)},
		{"Max duration", p.MaxTotalDuration.String()},
		{"Max complexity", strconv.Itoa(p.MaxComplexityScore)},
		{"Backup retention", p.BackupRetention.String()},
		{"Confirm at", p.ConfirmationThreshold.String()},
		{"Extensions", truncateString(strings.Join(p.AllowedExtensions, " "), 60)},
		{"Forbidden paths", truncateString(strings.Join(p.ForbiddenPaths, " "), 60)},
		{"Audit", yesNo(p.AuditEnabled)},
		{"Backups", yesNo(p.BackupEnabled)},
		{"Rollback", yesNo(p.RollbackEnabled)},
		{"Content scanning", yesNo(p.ContentScanning)},
		{"Dry run default", yesNo(p.DryRunDefault)},
	}), nil
}

func (f *TableFormatter) FormatPrune(r *scheduler.PruneResult) (string, error) {
	if r == nil || len(r.Removed) == 0 {
		return "Nothing to prune", nil
	}
	rows := make([][]string, 0, len(r.Removed))
	for _, path := range r.Removed {
		rows = append(rows, []string{path})
	}
	return f.list([]string{"Removed"}, rows) + fmt.Sprintf("\n%d bytes freed", r.BytesFreed), nil
}

func describeDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatSeconds(s int) string {
	return (time.Duration(s) * time.Second).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
