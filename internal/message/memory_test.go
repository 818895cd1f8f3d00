package message

import (
	"context"
	"errors"
	"testing"

	"relaybot/internal/transport"
)

func TestMemoryStoreAds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	ad := Ad{
		Name:         "promo",
		Source:       transport.MessageRef{ChatID: 42, MessageID: 7},
		FallbackText: "promo text",
		CreatedBy:    1,
	}
	if err := s.SaveAd(ctx, ad); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAd(ctx, "promo")
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != ad.Source || got.FallbackText != ad.FallbackText {
		t.Fatalf("got %+v, want %+v", got, ad)
	}

	if _, err := s.GetAd(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAd missing: err = %v, want ErrNotFound", err)
	}

	// Overwrite under the same name.
	ad.FallbackText = "updated"
	if err := s.SaveAd(ctx, ad); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetAd(ctx, "promo")
	if got.FallbackText != "updated" {
		t.Fatalf("fallback = %q after overwrite", got.FallbackText)
	}

	ads, err := s.ListAds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 {
		t.Fatalf("len(ads) = %d", len(ads))
	}

	if err := s.DeleteAd(ctx, "promo"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAd(ctx, "promo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreTargetLists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	tl := TargetList{
		Name: "groups",
		Targets: []transport.ChatTarget{
			{ChatID: -1001},
			{ChatID: -1002, ThreadID: 5},
		},
	}
	if err := s.SaveTargetList(ctx, tl); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTargetList(ctx, "groups")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Targets) != 2 {
		t.Fatalf("targets = %v", got.Targets)
	}

	// Store must not alias the caller's slice.
	tl.Targets[0].ChatID = -9999
	got, _ = s.GetTargetList(ctx, "groups")
	if got.Targets[0].ChatID == -9999 {
		t.Fatal("stored list aliases caller slice")
	}

	lists, err := s.ListTargetLists(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 1 || lists[0].Name != "groups" {
		t.Fatalf("lists = %v", lists)
	}

	if err := s.DeleteTargetList(ctx, "groups"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTargetList(ctx, "groups"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: err = %v, want ErrNotFound", err)
	}
}
