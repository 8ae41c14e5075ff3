package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"projecthub/internal/domain"
	"projecthub/internal/engine"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func row(cells ...any) table.Row { return table.Row(cells) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func printProjects(items ...domain.Project) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := newTable("ID", "Title", "Stage", "Owner", "Done %", "Investment", "Version")
	for _, p := range items {
		tw.AppendRow(row(p.ID, p.Title, p.Stage, p.OwnerID, p.CompletionPercent, p.SeekingInvestment, p.Version))
	}
	tw.Render()
	return nil
}

func printTasks(items ...domain.Task) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := newTable("ID", "Title", "Status", "Priority", "Assignee", "Due", "Depends on")
	for _, t := range items {
		tw.AppendRow(row(t.ID, t.Title, t.Status, t.Priority, deref(t.AssigneeID), day(t.DueDate), strings.Join(t.DependsOn, ",")))
	}
	tw.Render()
	return nil
}

func printTaskDetail(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	if err := printTasks(t); err != nil {
		return err
	}
	if t.Block != nil {
		fmt.Printf("blocked by %s at %s: %s (was %s)\n", t.Block.BlockedBy, t.Block.BlockedAt, t.Block.Reason, t.Block.PreviousStatus)
	}
	if len(t.Checklist) > 0 {
		tw := newTable("#", "Item", "Done")
		for _, c := range t.Checklist {
			mark := ""
			if c.Completed {
				mark = "x"
			}
			tw.AppendRow(row(c.Position, c.Text, mark))
		}
		tw.Render()
	}
	return nil
}

func printMembers(items ...domain.ProjectMember) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("User", "Role", "Joined")
	for _, m := range items {
		tw.AppendRow(row(m.UserID, m.Role, m.JoinedAt))
	}
	tw.Render()
	return nil
}

func printStageOptions(items []engine.StageOption) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("To", "Requirements", "Approvers", "Auto", "You may")
	for _, o := range items {
		approvers := make([]string, 0, len(o.Approvers))
		for _, r := range o.Approvers {
			approvers = append(approvers, string(r))
		}
		tw.AppendRow(row(o.To, strings.Join(o.Requirements, "; "), strings.Join(approvers, ","), o.AutoAdvance, o.CanApprove))
	}
	tw.Render()
	return nil
}

func printConflicts(items []domain.Conflict) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	tw := newTable("Type", "Severity", "Tasks", "Message")
	for _, c := range items {
		tw.AppendRow(row(c.Type, c.Severity, strings.Join(c.TaskIDs, ","), c.Message))
	}
	tw.Render()
	return nil
}

func printTimeEntries(items ...domain.TimeEntry) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Task", "User", "Date", "Hours", "Billable")
	var total float64
	for _, e := range items {
		tw.AppendRow(row(e.ID, e.TaskID, e.UserID, e.Date, e.Hours, e.Billable))
		total += e.Hours
	}
	tw.AppendFooter(row("", "", "", "total", total, ""))
	tw.Render()
	return nil
}
