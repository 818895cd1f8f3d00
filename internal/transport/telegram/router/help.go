package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders /help output in Telegram HTML parse mode. With no path it
// lists the top-level commands; with a path it describes one command or
// group. Aliases resolve to their canonical route.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	set := m.set
	alias := m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return helpIndex(set)
	}

	if g, ok := set.group(path[0]); ok {
		if len(path) >= 2 {
			if c, ok := g.sub(path[1]); ok {
				return helpCommand(*c, path[0]+" "+path[1])
			}
		}
		if g.cmd != nil && len(g.subs) == 0 {
			return helpCommand(*g.cmd, g.name)
		}
		return helpGroup(g)
	}
	if c, ok := alias[path[0]]; ok {
		return helpCommand(*c, c.Route)
	}

	return "❓ <b>Perintah tidak dikenal</b>\nCoba ketik <code>/help</code> untuk melihat daftar perintah."
}

// helpIndex lists every top-level command, owner-only entries last.
func helpIndex(set *commandSet) string {
	names := set.names()
	sort.SliceStable(names, func(i, j int) bool {
		gi, _ := set.group(names[i])
		gj, _ := set.group(names[j])
		if gi.ownerOnly() != gj.ownerOnly() {
			return !gi.ownerOnly()
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("📚 <b>Daftar Perintah</b>\n")
	b.WriteString("Ketik <code>/help &lt;cmd&gt;</code> untuk detail.\n")
	for _, name := range names {
		g, _ := set.group(name)
		b.WriteString("• ")
		if g.ownerOnly() {
			b.WriteString("🔒 ")
		}
		b.WriteString("<code>/" + html.EscapeString(name) + "</code>")
		if d := groupSummary(g); d != "" {
			b.WriteString(" - " + html.EscapeString(d))
		}
		b.WriteByte('\n')
	}
	b.WriteString("Tip: di Telegram, ketik <code>/</code> lalu mulai mengetik untuk melihat saran (autocomplete).")
	return b.String()
}

func helpCommand(c Command, title string) string {
	var b strings.Builder
	b.WriteString("📚 <b>Bantuan</b> <code>/" + html.EscapeString(title) + "</code>\n")
	if d := strings.TrimSpace(c.Description); d != "" {
		b.WriteString(html.EscapeString(d) + "\n")
	}
	if c.Access == AccessOwnerOnly {
		b.WriteString("🔒 <i>Khusus owner</i>\n")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		b.WriteString("<b>Usage</b>\n<code>" + html.EscapeString(u) + "</code>\n")
	}
	if short := commandShortcuts(c); len(short) > 0 {
		b.WriteString("<b>Shortcut</b>\n")
		for _, s := range short {
			b.WriteString("• <code>/" + html.EscapeString(s) + "</code>\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func helpGroup(g *commandGroup) string {
	var b strings.Builder
	b.WriteString("📚 <b>Bantuan</b> <code>/" + html.EscapeString(g.name) + "</code>\n")
	if g.cmd != nil {
		if d := strings.TrimSpace(g.cmd.Description); d != "" {
			b.WriteString(html.EscapeString(d) + "\n")
		}
	} else {
		b.WriteString("Grup perintah (punya subcommand).\n")
	}
	if g.ownerOnly() {
		b.WriteString("🔒 <i>Khusus owner</i>\n")
	}
	b.WriteString("<b>Subcommand</b>\n")
	for _, name := range g.subNames() {
		c, _ := g.sub(name)
		b.WriteString("• <code>/" + html.EscapeString(g.name+" "+name) + "</code>")
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(" - " + html.EscapeString(d))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// groupSummary picks the line shown next to a top-level entry: the command's
// own description, or a subcommand hint for bare groups.
func groupSummary(g *commandGroup) string {
	if g.cmd != nil {
		if d := strings.TrimSpace(g.cmd.Description); d != "" {
			return d
		}
	}
	kids := g.subNames()
	if len(kids) == 0 {
		return ""
	}
	if len(kids) > 3 {
		return "subcommand: " + strings.Join(kids[:3], ", ") + ", …"
	}
	return "subcommand: " + strings.Join(kids, ", ")
}

// commandShortcuts collects the alternate spellings that reach a command:
// declared aliases plus the underscore form Telegram's menu uses for
// multi-token routes.
func commandShortcuts(c Command) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(c.Aliases)+1)
	push := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	if route := splitRoute(c.Route); len(route) > 1 {
		push(sanitizeTelegramCommand(strings.Join(route, "_")))
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		push(a)
		push(sanitizeTelegramCommand(a))
	}
	sort.Strings(out)
	return out
}
