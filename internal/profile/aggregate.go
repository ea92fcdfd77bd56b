package profile

import (
	"context"
	"log"
	"sort"
	"sync"

	"skyvault.gg/internal/inventory"
)

// MuseumFetcher retrieves the museum document for one sub-profile. It is the
// aggregator's only suspension point; everything else is pure CPU work.
type MuseumFetcher interface {
	FetchMuseum(ctx context.Context, profileID string) (*MuseumDocument, error)
}

// MuseumGate decides whether a sub-profile/member pair is worth a museum
// fetch at all. The gate runs before the fetcher is invoked; its whole point
// is avoiding wasted upstream calls.
type MuseumGate struct {
	// MinExperience is the leveling experience a member must exceed.
	MinExperience float64
	// Zone is the visited-zone marker for the museum area.
	Zone string
}

// DefaultMuseumGate matches current upstream behavior.
var DefaultMuseumGate = MuseumGate{MinExperience: 30, Zone: "museum"}

// Eligible reports whether the gate passes for one profile/member pair.
// Museums only exist in normal and ironman modes.
func (g MuseumGate) Eligible(p Profile, m Member, ok bool) bool {
	if !ok {
		return false
	}
	switch p.Mode() {
	case "normal", "ironman":
	default:
		return false
	}
	if m.Leveling.Experience <= g.MinExperience {
		return false
	}
	for _, zone := range m.PlayerData.VisitedZones {
		if zone == g.Zone {
			return true
		}
	}
	return false
}

// Result is one aggregation pass over an account's full document: every
// identified item keyed by instance id, plus the applied-skin observations.
// AppliedSkins may contain duplicates; consumers deduplicate.
type Result struct {
	Items        map[string]inventory.Item
	AppliedSkins []string
}

// Aggregator merges all of an account's containers. Zero value is unusable;
// construct with the fields you need. Museum may be nil to skip museums
// entirely (offline evaluation of a saved document).
type Aggregator struct {
	Museum MuseumFetcher
	Gate   MuseumGate
	Log    *log.Logger
}

// Aggregate walks every sub-profile of the document and produces the
// unified item map for accountID.
//
// Processing order is fixed so duplicate instance ids resolve
// deterministically (last write wins): sub-profiles in document order, each
// profile's members by sorted id, each member's containers in MemberBlobs
// order; museum contents merge after all inventories, again in sub-profile
// document order. A blob that fails to decode is logged and skipped; one bad
// container never aborts the pass. A failed museum fetch degrades that
// sub-profile's museum contribution to empty.
func (a *Aggregator) Aggregate(ctx context.Context, doc *Document, accountID string) Result {
	res := Result{Items: map[string]inventory.Item{}}
	if doc == nil {
		return res
	}

	for _, p := range doc.Profiles {
		for _, memberID := range sortedMemberIDs(p.Members) {
			for _, nb := range MemberBlobs(p.Members[memberID]) {
				a.mergeBlob(&res, p.ProfileID, nb)
			}
		}
	}

	a.mergeMuseums(ctx, &res, doc, accountID)

	// Pet entries contribute applied pet skins regardless of any item state.
	for _, p := range doc.Profiles {
		for _, memberID := range sortedMemberIDs(p.Members) {
			for _, pet := range p.Members[memberID].PetsData.Pets {
				if pet.Skin != "" {
					res.AppliedSkins = append(res.AppliedSkins, "PET_SKIN_"+pet.Skin)
				}
			}
		}
	}

	// Skins observed on the unified items themselves: direct skin
	// attributes, and pet items carrying a skinned petInfo.
	for _, uuid := range sortedItemIDs(res.Items) {
		it := res.Items[uuid]
		if skin := it.Skin(); skin != "" {
			res.AppliedSkins = append(res.AppliedSkins, skin)
		}
		if it.Pet != nil && it.Pet.Skin != "" {
			res.AppliedSkins = append(res.AppliedSkins, "PET_SKIN_"+it.Pet.Skin)
		}
	}

	return res
}

func (a *Aggregator) mergeBlob(res *Result, profileID string, nb NamedBlob) {
	items, err := inventory.DecodeBlob(nb.Blob)
	if err != nil {
		a.logf("profile %s container %s: %v", profileID, nb.Name, err)
		return
	}
	for _, it := range items {
		if uuid := it.UUID(); uuid != "" {
			res.Items[uuid] = it
		}
	}
}

func (a *Aggregator) mergeMuseums(ctx context.Context, res *Result, doc *Document, accountID string) {
	if a.Museum == nil {
		return
	}

	// Independent fetches, so run them concurrently; merge in document
	// order afterwards to keep last-write-wins deterministic.
	docs := make([]*MuseumDocument, len(doc.Profiles))
	var wg sync.WaitGroup
	for i, p := range doc.Profiles {
		member, ok := p.Members[accountID]
		if !a.Gate.Eligible(p, member, ok) {
			continue
		}
		wg.Add(1)
		go func(i int, profileID string) {
			defer wg.Done()
			md, err := a.Museum.FetchMuseum(ctx, profileID)
			if err != nil {
				a.logf("profile %s museum fetch: %v", profileID, err)
				return
			}
			docs[i] = md
		}(i, p.ProfileID)
	}
	wg.Wait()

	for i, md := range docs {
		if md == nil {
			continue
		}
		profileID := doc.Profiles[i].ProfileID
		for _, memberID := range sortedMuseumMemberIDs(md.Profile.Members) {
			for _, nb := range MuseumBlobs(md.Profile.Members[memberID]) {
				a.mergeBlob(res, profileID, nb)
			}
		}
	}
}

func (a *Aggregator) logf(format string, args ...any) {
	if a.Log != nil {
		a.Log.Printf(format, args...)
	}
}

func sortedMemberIDs(members map[string]Member) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedMuseumMemberIDs(members map[string]MuseumMember) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedItemIDs(items map[string]inventory.Item) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
