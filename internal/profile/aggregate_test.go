package profile_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"skyvault.gg/internal/nbt"
	"skyvault.gg/internal/nbt/nbttest"
	"skyvault.gg/internal/profile"
)

const member1 = "aaaa0000bbbb1111"

func slot(id, uuid string, extra map[string]nbt.Tag) nbt.Tag {
	ea := map[string]nbt.Tag{"id": nbttest.String(id)}
	if uuid != "" {
		ea["uuid"] = nbttest.String(uuid)
	}
	for k, v := range extra {
		ea[k] = v
	}
	return nbttest.Compound(map[string]nbt.Tag{
		"Damage": nbttest.Short(0),
		"tag": nbttest.Compound(map[string]nbt.Tag{
			"ExtraAttributes": nbttest.Compound(ea),
		}),
	})
}

func blob(slots ...nbt.Tag) string {
	return nbttest.Blob(nbttest.Compound(map[string]nbt.Tag{
		"i": nbttest.List(nbt.TypeCompound, slots...),
	}))
}

func container(b string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"data": b})
	return raw
}

type fakeMuseum struct {
	mu    sync.Mutex
	calls []string
	docs  map[string]*profile.MuseumDocument
	err   error
}

func (f *fakeMuseum) FetchMuseum(ctx context.Context, profileID string) (*profile.MuseumDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, profileID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[profileID]
	if !ok {
		return nil, fmt.Errorf("no museum for %s", profileID)
	}
	return doc, nil
}

func museumDoc(member string, blobs ...string) *profile.MuseumDocument {
	mm := profile.MuseumMember{Items: map[string]profile.MuseumHolding{}}
	for i, b := range blobs {
		mm.Items[fmt.Sprintf("slot_%d", i)] = profile.MuseumHolding{Items: profile.MuseumItems{Data: b}}
	}
	return &profile.MuseumDocument{Profile: profile.MuseumProfile{
		Members: map[string]profile.MuseumMember{member: mm},
	}}
}

func eligibleMember(containers map[string]json.RawMessage) profile.Member {
	return profile.Member{
		Inventory:  containers,
		PlayerData: profile.PlayerData{VisitedZones: []string{"hub", "museum"}},
		Leveling:   profile.Leveling{Experience: 120},
	}
}

func TestAggregate_SingleContainer(t *testing.T) {
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {Inventory: map[string]json.RawMessage{
				"inv_contents": container(blob(
					slot("POTATO_BASKET", "uuid-1", nil),
					slot("SWORD", "", nil),
				)),
			}},
		},
	}}}

	agg := &profile.Aggregator{Gate: profile.DefaultMuseumGate}
	res := agg.Aggregate(context.Background(), doc, member1)

	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1 (SWORD has no instance id)", len(res.Items))
	}
	if got := res.Items["uuid-1"].ID(); got != "POTATO_BASKET" {
		t.Fatalf("items[uuid-1].ID()=%q", got)
	}
	if len(res.AppliedSkins) != 0 {
		t.Fatalf("unexpected skins %v", res.AppliedSkins)
	}
}

func TestAggregate_LastWriteWins(t *testing.T) {
	first := slot("SWORD", "uuid-dup", map[string]nbt.Tag{"note": nbttest.String("first")})
	second := slot("SWORD", "uuid-dup", map[string]nbt.Tag{"note": nbttest.String("second")})

	// Container names sort "a_inv" < "b_inv"; the later one must win.
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {Inventory: map[string]json.RawMessage{
				"a_inv": container(blob(first)),
				"b_inv": container(blob(second)),
			}},
		},
	}}}

	agg := &profile.Aggregator{}
	res := agg.Aggregate(context.Background(), doc, member1)

	ea, _ := res.Items["uuid-dup"].ExtraAttributes()
	if got := ea.GetString("note"); got != "second" {
		t.Fatalf("note=%q, want second (last write wins)", got)
	}
}

func TestAggregate_NestedContainerShape(t *testing.T) {
	nested, _ := json.Marshal(map[string]map[string]string{
		"0": {"data": blob(slot("BACKPACK_ITEM", "uuid-bp", nil))},
	})
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {Inventory: map[string]json.RawMessage{
				"backpack_contents": nested,
			}},
		},
	}}}

	res := (&profile.Aggregator{}).Aggregate(context.Background(), doc, member1)
	if res.Items["uuid-bp"].ID() != "BACKPACK_ITEM" {
		t.Fatalf("nested container not decoded: %v", res.Items)
	}
}

func TestAggregate_RiftAndShared(t *testing.T) {
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {
				Rift: profile.Rift{Inventory: map[string]json.RawMessage{
					"inv_contents": container(blob(slot("RIFT_TROPHY", "uuid-r", nil))),
				}},
				SharedInventory: map[string]json.RawMessage{
					"inventory": container(blob(slot("SHARED_THING", "uuid-s", nil))),
				},
			},
		},
	}}}

	res := (&profile.Aggregator{}).Aggregate(context.Background(), doc, member1)
	if res.Items["uuid-r"].ID() != "RIFT_TROPHY" || res.Items["uuid-s"].ID() != "SHARED_THING" {
		t.Fatalf("rift/shared not aggregated: %v", res.Items)
	}
}

func TestAggregate_BadBlobSkipped(t *testing.T) {
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {Inventory: map[string]json.RawMessage{
				"bad_inv":  container("!!!not base64!!!"),
				"good_inv": container(blob(slot("SWORD", "uuid-ok", nil))),
			}},
		},
	}}}

	res := (&profile.Aggregator{}).Aggregate(context.Background(), doc, member1)
	if len(res.Items) != 1 || res.Items["uuid-ok"].ID() != "SWORD" {
		t.Fatalf("bad blob should be skipped, good one kept: %v", res.Items)
	}
}

func TestAggregate_MuseumMerged(t *testing.T) {
	fm := &fakeMuseum{docs: map[string]*profile.MuseumDocument{
		"p1": museumDoc(member1, blob(slot("DONATED_RELIC", "uuid-m", nil))),
	}}
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members:   map[string]profile.Member{member1: eligibleMember(nil)},
	}}}

	agg := &profile.Aggregator{Museum: fm, Gate: profile.DefaultMuseumGate}
	res := agg.Aggregate(context.Background(), doc, member1)

	if len(fm.calls) != 1 || fm.calls[0] != "p1" {
		t.Fatalf("museum calls=%v, want [p1]", fm.calls)
	}
	if res.Items["uuid-m"].ID() != "DONATED_RELIC" {
		t.Fatalf("museum item missing: %v", res.Items)
	}
}

func TestAggregate_MuseumGate(t *testing.T) {
	cases := []struct {
		name      string
		profile   profile.Profile
		wantFetch bool
	}{
		{
			name: "spectator mode never fetches",
			profile: profile.Profile{
				ProfileID: "p1",
				GameMode:  "spectator",
				Members:   map[string]profile.Member{member1: eligibleMember(nil)},
			},
		},
		{
			name: "bingo mode never fetches",
			profile: profile.Profile{
				ProfileID: "p1",
				GameMode:  "bingo",
				Members:   map[string]profile.Member{member1: eligibleMember(nil)},
			},
		},
		{
			name: "museum zone not visited",
			profile: profile.Profile{
				ProfileID: "p1",
				Members: map[string]profile.Member{member1: {
					PlayerData: profile.PlayerData{VisitedZones: []string{"hub"}},
					Leveling:   profile.Leveling{Experience: 120},
				}},
			},
		},
		{
			name: "experience below threshold",
			profile: profile.Profile{
				ProfileID: "p1",
				Members: map[string]profile.Member{member1: {
					PlayerData: profile.PlayerData{VisitedZones: []string{"museum"}},
					Leveling:   profile.Leveling{Experience: 30},
				}},
			},
		},
		{
			name: "target member absent",
			profile: profile.Profile{
				ProfileID: "p1",
				Members:   map[string]profile.Member{"someoneelse": eligibleMember(nil)},
			},
		},
		{
			name: "ironman fetches",
			profile: profile.Profile{
				ProfileID: "p1",
				GameMode:  "ironman",
				Members:   map[string]profile.Member{member1: eligibleMember(nil)},
			},
			wantFetch: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fm := &fakeMuseum{docs: map[string]*profile.MuseumDocument{}}
			doc := &profile.Document{Profiles: []profile.Profile{tc.profile}}
			agg := &profile.Aggregator{Museum: fm, Gate: profile.DefaultMuseumGate}
			res := agg.Aggregate(context.Background(), doc, member1)

			if got := len(fm.calls) > 0; got != tc.wantFetch {
				t.Fatalf("fetched=%v, want %v (calls=%v)", got, tc.wantFetch, fm.calls)
			}
			if len(res.Items) != 0 {
				t.Fatalf("unexpected items %v", res.Items)
			}
		})
	}
}

func TestAggregate_MuseumFailureDegrades(t *testing.T) {
	fm := &fakeMuseum{err: errors.New("upstream timeout")}
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{member1: eligibleMember(map[string]json.RawMessage{
			"inv_contents": container(blob(slot("SWORD", "uuid-1", nil))),
		})},
	}}}

	agg := &profile.Aggregator{Museum: fm, Gate: profile.DefaultMuseumGate}
	res := agg.Aggregate(context.Background(), doc, member1)

	// The fetch failed but the member's own inventory still counts.
	if len(res.Items) != 1 || res.Items["uuid-1"].ID() != "SWORD" {
		t.Fatalf("inventory lost on museum failure: %v", res.Items)
	}
}

func TestAggregate_AppliedSkins(t *testing.T) {
	doc := &profile.Document{Profiles: []profile.Profile{{
		ProfileID: "p1",
		Members: map[string]profile.Member{
			member1: {
				Inventory: map[string]json.RawMessage{
					"inv_contents": container(blob(
						slot("SNOW_SHOVEL", "uuid-1", map[string]nbt.Tag{"skin": nbttest.String("FROSTY")}),
						slot("PET", "uuid-2", map[string]nbt.Tag{
							"petInfo": nbttest.String(`{"type":"DRAGON","skin":"NEON"}`),
						}),
					)),
				},
				PetsData: profile.PetsData{Pets: []profile.Pet{
					{Type: "TIGER", Skin: "TWILIGHT", UniqueID: "pet-1"},
					{Type: "RABBIT", UniqueID: "pet-2"}, // no skin, ignored
				}},
			},
		},
	}}}

	res := (&profile.Aggregator{}).Aggregate(context.Background(), doc, member1)

	want := map[string]bool{
		"PET_SKIN_TWILIGHT": true,
		"PET_SKIN_NEON":     true,
		"FROSTY":            true,
	}
	got := map[string]bool{}
	for _, s := range res.AppliedSkins {
		got[s] = true
	}
	for s := range want {
		if !got[s] {
			t.Fatalf("missing skin %s in %v", s, res.AppliedSkins)
		}
	}
	for s := range got {
		if !want[s] {
			t.Fatalf("unexpected skin %s in %v", s, res.AppliedSkins)
		}
	}
}
