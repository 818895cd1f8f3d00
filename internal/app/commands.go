package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/campaign"
	"relaybot/internal/dashboard"
	"relaybot/internal/failure"
	"relaybot/internal/message"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram/router"
)

const helpParseMode = "HTML"

func reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: helpParseMode, DisablePreview: true})
	return err
}

func replyPlain(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func usage(ctx context.Context, req *router.Request, u string) error {
	return reply(ctx, req, "usage: <code>"+html.EscapeString(u)+"</code>")
}

// commands builds the full command registry. Everything except /help is
// owner-only: this bot manages outbound campaigns and must never take
// instructions from arbitrary group members.
func (a *App) commands() []router.Command {
	return []router.Command{
		// ---- content ----
		{
			Route:       "setad",
			Description: "simpan konten iklan (reply ke pesan sumber)",
			Usage:       `/setad <name> [--fallback="text"]  (reply to the source message)`,
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdSetAd,
		},
		{
			Route:       "ads",
			Aliases:     []string{"listads"},
			Description: "daftar konten tersimpan",
			Usage:       "/ads",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdListAds,
		},
		{
			Route:       "delad",
			Aliases:     []string{"removead"},
			Description: "hapus konten",
			Usage:       "/delad <name>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdDeleteAd,
		},

		// ---- target lists ----
		{
			Route:       "addtarget",
			Description: "tambah target ke list",
			Usage:       "/addtarget <list> <chat> [chat...]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdAddTarget,
		},
		{
			Route:       "targets",
			Aliases:     []string{"listtargets"},
			Description: "daftar target list",
			Usage:       "/targets [list]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdTargets,
		},
		{
			Route:       "deltarget",
			Aliases:     []string{"removetarget"},
			Description: "hapus satu target dari list",
			Usage:       "/deltarget <list> <chat>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdDelTarget,
		},
		{
			Route:       "dellist",
			Description: "hapus target list",
			Usage:       "/dellist <list>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdDelList,
		},

		// ---- membership glue ----
		{
			Route:       "join",
			Description: "verifikasi akses bot ke chat",
			Usage:       "/join <chat>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdJoin,
		},
		{
			Route:       "leave",
			Description: "keluar dari chat",
			Usage:       "/leave <chat>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdLeave,
		},

		// ---- campaigns ----
		{
			Route:       "startad",
			Description: "mulai campaign berulang",
			Usage:       "/startad <ad> <list> <interval> [--once]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdStartAd,
		},
		{
			Route:       "broadcast",
			Description: "kirim sekali ke semua target",
			Usage:       "/broadcast <ad> <list>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdBroadcast,
		},
		{
			Route:       "schedule",
			Description: "mulai campaign terjadwal (cron/interval)",
			Usage:       `/schedule <ad> <list> "<spec>"   e.g. "0 9 * * *", "every:2h", "09:30"`,
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdSchedule,
		},
		{
			Route:       "stopad",
			Description: "hentikan satu campaign",
			Usage:       "/stopad <id>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdStopAd,
		},
		{
			Route:       "stopall",
			Description: "hentikan semua campaign",
			Usage:       "/stopall",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdStopAll,
		},
		{
			Route:       "campaigns",
			Aliases:     []string{"status"},
			Description: "ringkasan semua campaign",
			Usage:       "/campaigns [--state=running] [--kind=continuous]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdCampaigns,
		},

		// ---- live monitor ----
		{
			Route:       "monitor",
			Description: "pantau campaign via pesan yang di-edit",
			Usage:       "/monitor <id>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdMonitor,
		},
		{
			Route:       "unmonitor",
			Description: "lepas monitor",
			Usage:       "/unmonitor <id>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdUnmonitor,
		},

		// ---- failures ----
		{
			Route:       "failures",
			Description: "daftar target yang gagal",
			Usage:       "/failures [--reason=banned]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdFailures,
		},
		{
			Route:       "failures retry",
			Aliases:     []string{"retryfail"},
			Description: "coba ulang target retryable",
			Usage:       "/failures retry [chat...]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdFailuresRetry,
		},
		{
			Route:       "failures clear",
			Aliases:     []string{"clearfail"},
			Description: "kosongkan catatan kegagalan",
			Usage:       "/failures clear [chat...]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdFailuresClear,
		},

		// ---- analytics ----
		{
			Route:       "stats",
			Aliases:     []string{"analytics"},
			Description: "statistik pengiriman harian",
			Usage:       "/stats [YYYY-MM-DD]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdStats,
		},

		// ---- admins ----
		{
			Route:       "admin add",
			Aliases:     []string{"addadmin"},
			Description: "tambah admin runtime",
			Usage:       "/admin add <user_id>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdAdminAdd,
		},
		{
			Route:       "admin del",
			Aliases:     []string{"deladmin"},
			Description: "hapus admin runtime",
			Usage:       "/admin del <user_id>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdAdminDel,
		},
		{
			Route:       "admin list",
			Aliases:     []string{"admins"},
			Description: "daftar admin",
			Usage:       "/admin list",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdAdminList,
		},
	}
}

// ---- content ----

func (a *App) cmdSetAd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return usage(ctx, req, `/setad <name> [--fallback="text"]  (reply to the source message)`)
	}
	msg := req.Update.Message
	if msg == nil || msg.ReplyTo == nil {
		return replyPlain(ctx, req, "reply ke pesan sumber lalu jalankan /setad <name>")
	}
	name := req.Args[0]
	ad := message.Ad{
		Name:         name,
		Source:       *msg.ReplyTo,
		FallbackText: req.Flags["fallback"],
		CreatedBy:    req.FromID,
		CreatedAt:    time.Now(),
	}
	if err := a.store.SaveAd(ctx, ad); err != nil {
		return replyPlain(ctx, req, "gagal menyimpan: "+err.Error())
	}
	return replyPlain(ctx, req, fmt.Sprintf("konten %q tersimpan (message %d)", name, ad.Source.MessageID))
}

func (a *App) cmdListAds(ctx context.Context, req *router.Request) error {
	ads, err := a.store.ListAds(ctx)
	if err != nil {
		return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
	}
	if len(ads) == 0 {
		return replyPlain(ctx, req, "belum ada konten. gunakan /setad")
	}
	var b strings.Builder
	b.WriteString("<b>Konten tersimpan</b>\n")
	for _, ad := range ads {
		fmt.Fprintf(&b, "• <code>%s</code> — message %d di %d",
			html.EscapeString(ad.Name), ad.Source.MessageID, ad.Source.ChatID)
		if ad.FallbackText != "" {
			b.WriteString(" (punya fallback)")
		}
		b.WriteString("\n")
	}
	return reply(ctx, req, b.String())
}

func (a *App) cmdDeleteAd(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/delad <name>")
	}
	name := req.Args[0]
	if err := a.store.DeleteAd(ctx, name); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return replyPlain(ctx, req, "konten tidak ditemukan")
		}
		return replyPlain(ctx, req, "gagal menghapus: "+err.Error())
	}

	// Campaigns forwarding the deleted ad cannot finish their rounds.
	stopped := 0
	for _, snap := range a.reg.List() {
		if snap.MessageRef != name || snap.State.Terminal() {
			continue
		}
		if err := a.camps.Stop(snap.ID); err == nil {
			stopped++
		}
	}
	if stopped > 0 {
		return replyPlain(ctx, req, fmt.Sprintf("konten dihapus, %d campaign dihentikan", stopped))
	}
	return replyPlain(ctx, req, "konten dihapus")
}

// ---- target lists ----

func (a *App) cmdAddTarget(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return usage(ctx, req, "/addtarget <list> <chat> [chat...]")
	}
	name := req.Args[0]

	tl, err := a.store.GetTargetList(ctx, name)
	if err != nil && !errors.Is(err, message.ErrNotFound) {
		return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
	}
	tl.Name = name

	seen := make(map[kit.ChatTarget]struct{}, len(tl.Targets))
	for _, t := range tl.Targets {
		seen[t] = struct{}{}
	}

	added := 0
	var failedIDs []string
	for _, raw := range req.Args[1:] {
		t, err := a.adapter.Resolve(ctx, raw)
		if err != nil {
			failedIDs = append(failedIDs, raw+": "+err.Error())
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tl.Targets = append(tl.Targets, t)
		added++
	}

	if added > 0 {
		if err := a.store.SaveTargetList(ctx, tl); err != nil {
			return replyPlain(ctx, req, "gagal menyimpan: "+err.Error())
		}
	}

	out := fmt.Sprintf("list %q: +%d target (total %d)", name, added, len(tl.Targets))
	if len(failedIDs) > 0 {
		out += "\ngagal resolve:\n" + strings.Join(failedIDs, "\n")
	}
	return replyPlain(ctx, req, out)
}

func (a *App) cmdTargets(ctx context.Context, req *router.Request) error {
	if len(req.Args) >= 1 {
		tl, err := a.store.GetTargetList(ctx, req.Args[0])
		if err != nil {
			if errors.Is(err, message.ErrNotFound) {
				return replyPlain(ctx, req, "list tidak ditemukan")
			}
			return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<b>%s</b> — %d target\n", html.EscapeString(tl.Name), len(tl.Targets))
		for _, t := range tl.Targets {
			b.WriteString("• <code>" + html.EscapeString(targetLabel(t)) + "</code>\n")
		}
		return reply(ctx, req, b.String())
	}

	lists, err := a.store.ListTargetLists(ctx)
	if err != nil {
		return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
	}
	if len(lists) == 0 {
		return replyPlain(ctx, req, "belum ada target list. gunakan /addtarget")
	}
	var b strings.Builder
	b.WriteString("<b>Target list</b>\n")
	for _, tl := range lists {
		fmt.Fprintf(&b, "• <code>%s</code> — %d target\n", html.EscapeString(tl.Name), len(tl.Targets))
	}
	return reply(ctx, req, b.String())
}

func (a *App) cmdDelTarget(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 2 {
		return usage(ctx, req, "/deltarget <list> <chat>")
	}
	tl, err := a.store.GetTargetList(ctx, req.Args[0])
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return replyPlain(ctx, req, "list tidak ditemukan")
		}
		return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
	}
	t, err := a.adapter.Resolve(ctx, req.Args[1])
	if err != nil {
		return replyPlain(ctx, req, "gagal resolve: "+err.Error())
	}
	kept := tl.Targets[:0]
	removed := 0
	for _, x := range tl.Targets {
		if x == t {
			removed++
			continue
		}
		kept = append(kept, x)
	}
	tl.Targets = kept
	if removed == 0 {
		return replyPlain(ctx, req, "target tidak ada di list")
	}
	if err := a.store.SaveTargetList(ctx, tl); err != nil {
		return replyPlain(ctx, req, "gagal menyimpan: "+err.Error())
	}
	return replyPlain(ctx, req, fmt.Sprintf("target dihapus dari %q (%d tersisa)", tl.Name, len(tl.Targets)))
}

func (a *App) cmdDelList(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/dellist <list>")
	}
	if err := a.store.DeleteTargetList(ctx, req.Args[0]); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return replyPlain(ctx, req, "list tidak ditemukan")
		}
		return replyPlain(ctx, req, "gagal menghapus: "+err.Error())
	}
	return replyPlain(ctx, req, "list dihapus")
}

// ---- membership glue ----

func (a *App) cmdJoin(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/join <chat>")
	}
	if err := a.adapter.Join(ctx, req.Args[0]); err != nil {
		return replyPlain(ctx, req, "tidak bisa mengakses chat: "+err.Error())
	}
	return replyPlain(ctx, req, "bot punya akses ke chat tersebut")
}

func (a *App) cmdLeave(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/leave <chat>")
	}
	t, err := a.adapter.Resolve(ctx, req.Args[0])
	if err != nil {
		return replyPlain(ctx, req, "gagal resolve: "+err.Error())
	}
	if err := a.adapter.Leave(ctx, t); err != nil {
		return replyPlain(ctx, req, "gagal keluar: "+err.Error())
	}
	return replyPlain(ctx, req, "bot keluar dari chat")
}

// ---- campaigns ----

func (a *App) startCampaign(ctx context.Context, req *router.Request, adName, listName string, interval time.Duration, kind campaign.Kind, sched *campaign.Schedule) error {
	tl, err := a.store.GetTargetList(ctx, listName)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return replyPlain(ctx, req, "target list tidak ditemukan")
		}
		return replyPlain(ctx, req, "gagal membaca storage: "+err.Error())
	}

	snap, err := a.camps.Start(ctx, campaign.CreateSpec{
		MessageRef: adName,
		Targets:    tl.Targets,
		Interval:   interval,
		Kind:       kind,
	}, sched)
	if err != nil {
		return replyPlain(ctx, req, "gagal memulai: "+err.Error())
	}

	return reply(ctx, req, fmt.Sprintf(
		"campaign <code>%s</code> berjalan\nkonten: %s | target: %d | kind: %s\npantau dengan <code>/monitor %s</code>",
		html.EscapeString(snap.ID), html.EscapeString(adName), len(snap.Targets), snap.Kind, html.EscapeString(snap.ID)))
}

func (a *App) cmdStartAd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return usage(ctx, req, "/startad <ad> <list> <interval> [--once]")
	}
	kind := campaign.KindContinuous
	var interval time.Duration
	if req.BoolFlags["once"] {
		kind = campaign.KindOneShot
	} else {
		if len(req.Args) < 3 {
			return usage(ctx, req, "/startad <ad> <list> <interval> [--once]")
		}
		var err error
		interval, err = time.ParseDuration(req.Args[2])
		if err != nil {
			return replyPlain(ctx, req, "interval tidak valid: "+err.Error())
		}
	}
	return a.startCampaign(ctx, req, req.Args[0], req.Args[1], interval, kind, nil)
}

func (a *App) cmdBroadcast(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 2 {
		return usage(ctx, req, "/broadcast <ad> <list>")
	}
	return a.startCampaign(ctx, req, req.Args[0], req.Args[1], 0, campaign.KindBroadcast, nil)
}

func (a *App) cmdSchedule(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 3 {
		return usage(ctx, req, `/schedule <ad> <list> "<spec>"`)
	}
	spec := strings.Join(req.Args[2:], " ")
	sched, err := campaign.ParseSchedule(spec)
	if err != nil {
		return replyPlain(ctx, req, "jadwal tidak valid: "+err.Error())
	}
	// Interval schedules reuse the recurring path so the minimum interval
	// guard still applies.
	interval := sched.Every
	return a.startCampaign(ctx, req, req.Args[0], req.Args[1], interval, campaign.KindScheduled, &sched)
}

func (a *App) cmdStopAd(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/stopad <id>")
	}
	if err := a.camps.Stop(req.Args[0]); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			return replyPlain(ctx, req, "campaign tidak ditemukan")
		}
		return replyPlain(ctx, req, "gagal berhenti: "+err.Error())
	}
	return replyPlain(ctx, req, "campaign dihentikan")
}

func (a *App) cmdStopAll(ctx context.Context, req *router.Request) error {
	a.mons.DetachAll()
	n := a.camps.StopAll()
	return replyPlain(ctx, req, fmt.Sprintf("%d campaign dihentikan", n))
}

func (a *App) cmdCampaigns(ctx context.Context, req *router.Request) error {
	f := dashboard.Filter{
		State: campaign.State(strings.ToLower(req.Flags["state"])),
		Kind:  campaign.Kind(strings.ToLower(req.Flags["kind"])),
	}
	text := dashboard.RenderOverview(a.reg.List(), f, time.Now())
	return replyPlain(ctx, req, text)
}

// ---- live monitor ----

func (a *App) cmdMonitor(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/monitor <id>")
	}
	id := req.Args[0]
	if _, ok := a.reg.Get(id); !ok {
		return replyPlain(ctx, req, "campaign tidak ditemukan")
	}

	ref, err := req.Adapter.SendText(ctx, req.Chat, "menyiapkan monitor...", nil)
	if err != nil {
		return err
	}
	sink := dashboard.NewEditorSink(a.adapter, ref)
	if err := a.mons.Attach(id, sink); err != nil {
		if errors.Is(err, dashboard.ErrMonitorActive) {
			return replyPlain(ctx, req, "campaign sudah dipantau")
		}
		if errors.Is(err, campaign.ErrNotFound) {
			return replyPlain(ctx, req, "campaign tidak ditemukan")
		}
		return err
	}
	return nil
}

func (a *App) cmdUnmonitor(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/unmonitor <id>")
	}
	if !a.mons.Detach(req.Args[0]) {
		return replyPlain(ctx, req, "tidak ada monitor untuk campaign itu")
	}
	return replyPlain(ctx, req, "monitor dilepas")
}

// ---- failures ----

func (a *App) cmdFailures(ctx context.Context, req *router.Request) error {
	var f failure.ListFilter
	if r := strings.TrimSpace(req.Flags["reason"]); r != "" {
		f.Reason = failure.Reason(strings.ToLower(r))
	}
	recs := a.ledger.List(f)
	if len(recs) == 0 {
		return replyPlain(ctx, req, "tidak ada kegagalan tercatat")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Kegagalan</b> — %d target\n", len(recs))
	for i, r := range recs {
		if i >= 20 {
			fmt.Fprintf(&b, "… dan %d lainnya\n", len(recs)-i)
			break
		}
		fmt.Fprintf(&b, "• <code>%s</code> — %s ×%d, terakhir %s\n",
			html.EscapeString(targetLabel(r.Target)), r.Reason, r.FailedCount,
			r.LastAttempt.Format("01-02 15:04"))
	}
	return reply(ctx, req, b.String())
}

func (a *App) cmdFailuresRetry(ctx context.Context, req *router.Request) error {
	targets, err := a.resolveArgs(ctx, req.Args)
	if err != nil {
		return replyPlain(ctx, req, "gagal resolve: "+err.Error())
	}
	ok, attempted := a.camps.RetryFailures(ctx, targets)
	if attempted == 0 {
		return replyPlain(ctx, req, "tidak ada target retryable")
	}
	return replyPlain(ctx, req, fmt.Sprintf("retry selesai: %d/%d berhasil", ok, attempted))
}

func (a *App) cmdFailuresClear(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		n := a.ledger.RemoveAll()
		return replyPlain(ctx, req, fmt.Sprintf("%d catatan dihapus", n))
	}
	targets, err := a.resolveArgs(ctx, req.Args)
	if err != nil {
		return replyPlain(ctx, req, "gagal resolve: "+err.Error())
	}
	n := a.ledger.Remove(targets)
	return replyPlain(ctx, req, fmt.Sprintf("%d catatan dihapus", n))
}

func (a *App) resolveArgs(ctx context.Context, args []string) ([]kit.ChatTarget, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]kit.ChatTarget, 0, len(args))
	for _, raw := range args {
		t, err := a.adapter.Resolve(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ---- analytics ----

func (a *App) cmdStats(ctx context.Context, req *router.Request) error {
	day := time.Now().UTC().Format("2006-01-02")
	if len(req.Args) >= 1 {
		if _, err := time.Parse("2006-01-02", req.Args[0]); err != nil {
			return replyPlain(ctx, req, "format tanggal: YYYY-MM-DD")
		}
		day = req.Args[0]
	}
	rows := a.tracker.Summary(day)
	if len(rows) == 0 {
		return replyPlain(ctx, req, "tidak ada data untuk "+day)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Statistik %s</b>\n", day)
	for _, r := range rows {
		fmt.Fprintf(&b, "• <code>%s</code> — terkirim %d, gagal %d, %d chat\n",
			html.EscapeString(r.Ad), r.Sent, r.Failed, r.Targets)
	}
	return reply(ctx, req, b.String())
}

// ---- admins ----

func (a *App) cmdAdminAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/admin add <user_id>")
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return replyPlain(ctx, req, "user_id tidak valid")
	}
	if !a.addAdmin(id) {
		return replyPlain(ctx, req, "sudah terdaftar")
	}
	return replyPlain(ctx, req, fmt.Sprintf("admin %d ditambahkan (sampai restart)", id))
}

func (a *App) cmdAdminDel(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return usage(ctx, req, "/admin del <user_id>")
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return replyPlain(ctx, req, "user_id tidak valid")
	}
	if !a.removeAdmin(id) {
		return replyPlain(ctx, req, "bukan admin runtime (owner dari config tidak bisa dihapus)")
	}
	return replyPlain(ctx, req, fmt.Sprintf("admin %d dihapus", id))
}

func (a *App) cmdAdminList(ctx context.Context, req *router.Request) error {
	cfg := a.cfgm.Get()
	var b strings.Builder
	b.WriteString("<b>Owner (config)</b>\n")
	for _, id := range cfg.Telegram.OwnerUserIDs {
		fmt.Fprintf(&b, "• <code>%d</code>\n", id)
	}
	runtime := a.adminList()
	if len(runtime) > 0 {
		b.WriteString("<b>Admin (runtime)</b>\n")
		for _, id := range runtime {
			fmt.Fprintf(&b, "• <code>%d</code>\n", id)
		}
	}
	return reply(ctx, req, b.String())
}

func targetLabel(t kit.ChatTarget) string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d/%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}
