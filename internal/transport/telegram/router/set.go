package router

import (
	"fmt"
	"sort"
	"strings"
)

// commandSet indexes registered commands by route. Routes here are at most
// two tokens deep ("failures retry", "admin add"), so a flat two-level table
// replaces a general tree: a top-level name is either runnable itself,
// groups subcommands, or both.
type commandSet struct {
	top map[string]*commandGroup
}

type commandGroup struct {
	name string
	cmd  *Command            // set when the bare name is runnable
	subs map[string]*Command // second route token -> command
}

func newCommandSet() *commandSet {
	return &commandSet{top: map[string]*commandGroup{}}
}

func splitRoute(route string) []string {
	return strings.Fields(strings.TrimSpace(route))
}

// add registers a command. Routes deeper than two tokens are a programming
// error in the registration table, not operator input, so they panic.
func (s *commandSet) add(route []string, c Command) {
	switch len(route) {
	case 0:
		return
	case 1, 2:
	default:
		panic(fmt.Sprintf("router: route %q is deeper than two tokens", c.Route))
	}

	g := s.top[route[0]]
	if g == nil {
		g = &commandGroup{name: route[0], subs: map[string]*Command{}}
		s.top[route[0]] = g
	}
	if len(route) == 1 {
		g.cmd = &c
		return
	}
	g.subs[route[1]] = &c
}

func (s *commandSet) group(name string) (*commandGroup, bool) {
	g, ok := s.top[name]
	return g, ok
}

// resolve returns the command registered under a one- or two-token path.
func (s *commandSet) resolve(path []string) (*Command, bool) {
	if len(path) == 0 || len(path) > 2 {
		return nil, false
	}
	g, ok := s.top[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return g.cmd, g.cmd != nil
	}
	c, ok := g.subs[path[1]]
	return c, ok
}

func (s *commandSet) names() []string {
	out := make([]string, 0, len(s.top))
	for k := range s.top {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *commandGroup) sub(name string) (*Command, bool) {
	c, ok := g.subs[name]
	return c, ok
}

func (g *commandGroup) subNames() []string {
	out := make([]string, 0, len(g.subs))
	for k := range g.subs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ownerOnly reports whether everything under the group needs owner access,
// which decides the lock marker in help and menu listings.
func (g *commandGroup) ownerOnly() bool {
	if g.cmd != nil && g.cmd.Access == AccessEveryone {
		return false
	}
	for _, c := range g.subs {
		if c.Access == AccessEveryone {
			return false
		}
	}
	return g.cmd != nil || len(g.subs) > 0
}
