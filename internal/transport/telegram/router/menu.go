package router

import (
	"strings"

	kit "relaybot/internal/transport"
)

// Telegram limits bot command names to [a-z0-9_]{1,32} and the menu to 100
// entries with descriptions up to 256 chars.
const (
	maxMenuCommands = 100
	maxMenuNameLen  = 32
	maxMenuDescLen  = 256
)

// sanitizeTelegramCommand squeezes an arbitrary route or alias into a
// Telegram-safe command name: lowercase, runs of anything outside [a-z0-9]
// collapse to a single underscore, digit-leading names get a prefix.
func sanitizeTelegramCommand(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	out := strings.Join(parts, "_")
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuNameLen {
		out = strings.TrimRight(out[:maxMenuNameLen], "_")
	}
	return out
}

// buildTelegramMenuCommands flattens the command set for setMyCommands:
// top-level names first (best autocomplete), then the underscore shortcuts
// of two-token routes. Owner-only entries get a lock marker so the menu does
// not oversell what a group member can run.
func buildTelegramMenuCommands(set *commandSet) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(set.top))
	seen := map[string]bool{}
	push := func(name, desc string, locked bool) {
		name = sanitizeTelegramCommand(name)
		if name == "" || seen[name] || len(out) >= maxMenuCommands {
			return
		}
		seen[name] = true
		desc = strings.ReplaceAll(strings.TrimSpace(desc), "\n", " ")
		if desc == "" {
			desc = name
		}
		if locked {
			desc = "🔒 " + desc
		}
		if len(desc) > maxMenuDescLen {
			desc = desc[:maxMenuDescLen]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}

	for _, name := range set.names() {
		g, _ := set.group(name)
		push(name, groupSummary(g), g.ownerOnly())
	}
	for _, name := range set.names() {
		g, _ := set.group(name)
		for _, sub := range g.subNames() {
			c, _ := g.sub(sub)
			desc := c.Description
			if desc == "" {
				desc = name + " " + sub
			}
			push(name+"_"+sub, desc, c.Access == AccessOwnerOnly)
		}
	}
	return out
}
