package router

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"relaybot/pkg/logx"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{in: "/startad promo -1001 60m", want: []string{"/startad", "promo", "-1001", "60m"}},
		{in: `/setad "summer sale" --fallback="see pinned"`, want: []string{"/setad", "summer sale", "--fallback=see pinned"}},
		{in: "   ", want: nil},
		{in: "/failures retry", want: []string{"/failures", "retry"}},
	}
	for _, tc := range cases {
		got := tokenizeCommandLine(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenizeCommandLine(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	pos, flags, bools := parseFlags([]string{"promo", "--interval=90m", "--dry", "-v"})
	if !reflect.DeepEqual(pos, []string{"promo"}) {
		t.Errorf("pos = %#v", pos)
	}
	if flags["interval"] != "90m" {
		t.Errorf("flags = %#v", flags)
	}
	if !bools["dry"] || !bools["v"] {
		t.Errorf("bools = %#v", bools)
	}
}

func TestCommandSetResolve(t *testing.T) {
	t.Parallel()

	set := newCommandSet()
	set.add(splitRoute("failures"), Command{Route: "failures"})
	set.add(splitRoute("failures retry"), Command{Route: "failures retry"})
	set.add(splitRoute("failures clear"), Command{Route: "failures clear"})

	c, ok := set.resolve([]string{"failures", "retry"})
	if !ok || c.Route != "failures retry" {
		t.Fatalf("resolve(failures retry) = %+v, %v", c, ok)
	}

	// Registering subcommands must not displace the group's own command.
	c, ok = set.resolve([]string{"failures"})
	if !ok || c.Route != "failures" {
		t.Fatalf("resolve(failures) = %+v, %v", c, ok)
	}

	g, _ := set.group("failures")
	if got := g.subNames(); !reflect.DeepEqual(got, []string{"clear", "retry"}) {
		t.Errorf("subNames = %#v", got)
	}
	if _, ok := set.resolve([]string{"failures", "nope"}); ok {
		t.Error("resolved unknown subcommand")
	}
}

func TestCommandGroupOwnerOnly(t *testing.T) {
	t.Parallel()

	set := newCommandSet()
	set.add(splitRoute("admin add"), Command{Route: "admin add", Access: AccessOwnerOnly})
	set.add(splitRoute("admin list"), Command{Route: "admin list", Access: AccessOwnerOnly})
	set.add(splitRoute("help"), Command{Route: "help", Access: AccessEveryone})

	if g, _ := set.group("admin"); !g.ownerOnly() {
		t.Error("all-owner group not marked owner-only")
	}
	if g, _ := set.group("help"); g.ownerOnly() {
		t.Error("open command marked owner-only")
	}
}

func TestBuildTelegramMenuCommands(t *testing.T) {
	t.Parallel()

	set := newCommandSet()
	set.add(splitRoute("campaigns"), Command{Route: "campaigns", Description: "daftar campaign"})
	set.add(splitRoute("failures retry"), Command{Route: "failures retry", Description: "coba ulang", Access: AccessOwnerOnly})

	menu := buildTelegramMenuCommands(set)
	byName := map[string]string{}
	for _, e := range menu {
		byName[e.Command] = e.Description
	}
	if byName["campaigns"] != "daftar campaign" {
		t.Errorf("campaigns entry = %q", byName["campaigns"])
	}
	if got := byName["failures_retry"]; got != "🔒 coba ulang" {
		t.Errorf("failures_retry entry = %q", got)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"failures retry", "failures_retry"},
		{"Clear-Fail", "clear_fail"},
		{"__x__", "x"},
		{"", ""},
		{"42abc", "cmd_42abc"},
	}
	for _, tc := range cases {
		if got := sanitizeTelegramCommand(tc.in); got != tc.want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHelpText(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *Request) error { return nil }
	m := NewCommandManager(logx.Nop(), nil, nil, nil)
	m.SetRegistry([]Command{
		{Route: "campaigns", Aliases: []string{"status"}, Description: "daftar campaign", Handle: noop},
		{Route: "failures retry", Description: "coba ulang", Access: AccessOwnerOnly, Handle: noop},
	}, nil)

	index := m.helpText(nil)
	for _, want := range []string{"/campaigns", "/failures", "/help"} {
		if !strings.Contains(index, want) {
			t.Errorf("index missing %q:\n%s", want, index)
		}
	}

	group := m.helpText([]string{"failures"})
	if !strings.Contains(group, "retry") || !strings.Contains(group, "Khusus owner") {
		t.Errorf("group help = %q", group)
	}

	if got := m.helpText([]string{"status"}); !strings.Contains(got, "daftar campaign") {
		t.Errorf("alias help = %q", got)
	}
	if got := m.helpText([]string{"bogus"}); !strings.Contains(got, "tidak dikenal") {
		t.Errorf("unknown help = %q", got)
	}
}

func TestIsOwner(t *testing.T) {
	t.Parallel()
	owners := []int64{10, 20}
	if !isOwner(10, owners) || isOwner(30, owners) {
		t.Fatal("owner check broken")
	}
}
