package tui

import (
	"fmt"
	"strings"

	"github.com/emrlift/emrlift/internal/preflight"
	"github.com/emrlift/emrlift/internal/state"
)

// RenderInfo formats the result of the info macro.
func RenderInfo(info map[string]any) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Cluster %v", info["clusterId"])))
	b.WriteString("\n")
	row(&b, "Name", info["name"])
	row(&b, "State", info["state"])

	if master, ok := info["masterInstance"].(map[string]any); ok && master != nil {
		row(&b, "Master", master["privateIpAddress"])
	} else {
		row(&b, "Master", "-")
	}

	workers, _ := info["slaveInstances"].([]map[string]any)
	addrs := make([]string, 0, len(workers))
	for _, w := range workers {
		addrs = append(addrs, fmt.Sprint(w["privateIpAddress"]))
	}
	row(&b, fmt.Sprintf("Workers (%d)", len(addrs)), strings.Join(addrs, ", "))

	groups, _ := info["instanceGroups"].([]map[string]any)
	if len(groups) > 0 {
		b.WriteString("\n")
		b.WriteString(headStyle.Render(fmt.Sprintf("%-22s %-8s %-14s %-8s %s", "GROUP", "ROLE", "TYPE", "RUNNING", "STATE")))
		b.WriteString("\n")
		for _, g := range groups {
			b.WriteString(fmt.Sprintf("%-22v %-8v %-14v %-8v %v\n",
				g["instanceGroupId"], g["instanceGroupType"], g["instanceType"], g["runningInstanceCount"], g["status"]))
		}
	}
	return b.String()
}

// RenderPreflight formats a pre-flight report, one line per check.
func RenderPreflight(r *preflight.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Pre-flight checks"))
	b.WriteString("\n")
	if r.ARN != "" {
		row(&b, "Caller", r.ARN)
	}
	for _, c := range r.Checks {
		mark := okStyle.Render("✓")
		if !c.Passed {
			mark = failStyle.Render("✗")
		}
		line := fmt.Sprintf("  %s %s", mark, c.Name)
		if c.Detail != "" {
			line += dimStyle.Render("  " + c.Detail)
		}
		b.WriteString(line + "\n")
	}
	if r.OK() {
		b.WriteString(okStyle.Render("All checks passed"))
	} else {
		b.WriteString(failStyle.Render("Some checks failed"))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderRecords lists the managed clusters.
func RenderRecords(records []*state.Record) string {
	if len(records) == 0 {
		return dimStyle.Render("No managed clusters") + "\n"
	}
	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("%-24s %-8s %-18s %s", "ID", "TYPE", "EMR CLUSTER", "UPDATED")))
	b.WriteString("\n")
	for _, r := range records {
		emrID, _ := r.Data["emrClusterId"].(string)
		if emrID == "" {
			emrID = "-"
		}
		b.WriteString(fmt.Sprintf("%-24s %-8s %-18s %s\n", r.ID, r.Type, emrID, r.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

func row(b *strings.Builder, label string, value any) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(fmt.Sprint(value))
	b.WriteString("\n")
}
