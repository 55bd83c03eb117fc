package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dmitrijs2005/storekeeper/internal/client/services"
	"github.com/dmitrijs2005/storekeeper/internal/client/syncer"
)

var (
	onlineStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	offlineStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

func renderBanner(online bool) string {
	if online {
		return onlineStyle.Render("● online") + dimStyle.Render("  changes will sync automatically")
	}
	return offlineStyle.Render("○ offline") + dimStyle.Render("  changes are kept locally")
}

func renderState(online bool) string {
	if online {
		return onlineStyle.Render("online")
	}
	return offlineStyle.Render("offline")
}

func renderStatus(st services.Status, online bool) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), value)
	}

	user := st.UserID
	if user == "" {
		user = dimStyle.Render("-")
	}
	ws := st.WorkspaceID
	if ws == "" {
		ws = dimStyle.Render("-")
	}
	row("user", user)
	row("workspace", ws)
	row("network", renderState(online))
	row("logged in", fmt.Sprint(st.LoggedIn))

	pending := fmt.Sprint(st.Pending)
	if st.Pending > 0 {
		pending = warnStyle.Render(pending)
	}
	row("pending", pending)
	if st.Exhausted > 0 {
		row("stuck", offlineStyle.Render(fmt.Sprint(st.Exhausted))+dimStyle.Render("  see 'discard'"))
	}

	last := dimStyle.Render("never")
	if !st.LastSync.IsZero() {
		last = st.LastSync.Local().Format("2006-01-02 15:04:05")
	}
	row("last sync", last)
	return strings.TrimRight(b.String(), "\n")
}

func renderResult(r syncer.Result) string {
	head := onlineStyle.Render("sync ok")
	if !r.Success {
		head = offlineStyle.Render("sync failed")
	}
	s := fmt.Sprintf("%s  pushed %d, pulled %d", head, r.Pushed, r.Pulled)
	for _, c := range r.Conflicts {
		s += "\n  " + warnStyle.Render("conflict: ") + c
	}
	for _, e := range r.Errors {
		s += "\n  " + offlineStyle.Render("error: ") + e
	}
	return s
}
