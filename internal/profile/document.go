// Package profile models the upstream account-profile document and
// aggregates every inventory container it references into one unified item
// map per account. The package does no network I/O itself; museum contents
// come through the MuseumFetcher boundary.
package profile

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Document is the upstream profiles response for one account. An account can
// belong to several sub-profiles, each with its own members and containers.
type Document struct {
	Profiles []Profile `json:"profiles"`
}

type Profile struct {
	ProfileID string `json:"profile_id"`
	CuteName  string `json:"cute_name"`
	// GameMode is empty for regular profiles; upstream only sets it for
	// special modes ("ironman", "bingo", ...).
	GameMode string            `json:"game_mode"`
	Members  map[string]Member `json:"members"`
}

// Mode returns the effective game mode, defaulting empty to "normal".
func (p Profile) Mode() string {
	if p.GameMode == "" {
		return "normal"
	}
	return p.GameMode
}

// Member holds the per-member fields the aggregator consumes. Container
// groups are kept raw because their value shapes vary (see ContainerBlobs).
type Member struct {
	Inventory       map[string]json.RawMessage `json:"inventory"`
	Rift            Rift                       `json:"rift"`
	SharedInventory map[string]json.RawMessage `json:"shared_inventory"`
	PetsData        PetsData                   `json:"pets_data"`
	PlayerData      PlayerData                 `json:"player_data"`
	Leveling        Leveling                   `json:"leveling"`
}

type Rift struct {
	Inventory map[string]json.RawMessage `json:"inventory"`
}

type PetsData struct {
	Pets []Pet `json:"pets"`
}

type Pet struct {
	Type     string `json:"type"`
	Skin     string `json:"skin"`
	UniqueID string `json:"uniqueId"`
}

type PlayerData struct {
	VisitedZones []string `json:"visited_zones"`
}

type Leveling struct {
	Experience float64 `json:"experience"`
}

// MuseumDocument is the upstream museum response for one sub-profile. Its
// container layout differs from regular inventories: named donation slots
// plus a list of special donations, each holding one blob.
type MuseumDocument struct {
	Profile MuseumProfile `json:"profile"`
}

type MuseumProfile struct {
	Members map[string]MuseumMember `json:"members"`
}

type MuseumMember struct {
	Items   map[string]MuseumHolding `json:"items"`
	Special []MuseumHolding          `json:"special"`
}

type MuseumHolding struct {
	Items MuseumItems `json:"items"`
}

type MuseumItems struct {
	Data string `json:"data"`
}

// NamedBlob is one container payload located in a document, tagged with a
// stable name used for ordering and log messages.
type NamedBlob struct {
	Name string
	Blob string
}

// containerValue matches both payload shapes a container group value can
// take: {"data": blob} directly, or one nesting level deeper for grouped
// containers like backpacks ({"0": {"data": blob}, "1": ...}).
type containerValue struct {
	Data string `json:"data"`
}

// ContainerBlobs extracts the blobs of one container group value. Values
// matching neither accepted shape yield nothing; absence of data is normal,
// not an error.
func ContainerBlobs(name string, raw json.RawMessage) []NamedBlob {
	var direct containerValue
	if err := json.Unmarshal(raw, &direct); err == nil && direct.Data != "" {
		return []NamedBlob{{Name: name, Blob: direct.Data}}
	}

	var nested map[string]containerValue
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil
	}
	subs := make([]string, 0, len(nested))
	for sub, v := range nested {
		if v.Data != "" {
			subs = append(subs, sub)
		}
	}
	sort.Strings(subs)

	out := make([]NamedBlob, 0, len(subs))
	for _, sub := range subs {
		out = append(out, NamedBlob{Name: name + "/" + sub, Blob: nested[sub].Data})
	}
	return out
}

// MemberBlobs lists every inventory blob of one member in the fixed
// processing order: primary inventories, then rift, then shared, each group
// sorted by container name. The order is load-bearing: duplicate instance
// ids across containers resolve to the last-processed occurrence.
func MemberBlobs(m Member) []NamedBlob {
	var out []NamedBlob
	out = append(out, groupBlobs("", m.Inventory)...)
	out = append(out, groupBlobs("rift_", m.Rift.Inventory)...)
	out = append(out, groupBlobs("shared_", m.SharedInventory)...)
	return out
}

func groupBlobs(prefix string, group map[string]json.RawMessage) []NamedBlob {
	names := make([]string, 0, len(group))
	for name := range group {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []NamedBlob
	for _, name := range names {
		out = append(out, ContainerBlobs(prefix+name, group[name])...)
	}
	return out
}

// MuseumBlobs lists every blob of one museum member: named donation slots
// sorted, then special donations in document order.
func MuseumBlobs(m MuseumMember) []NamedBlob {
	slots := make([]string, 0, len(m.Items))
	for slot := range m.Items {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var out []NamedBlob
	for _, slot := range slots {
		if m.Items[slot].Items.Data != "" {
			out = append(out, NamedBlob{Name: "museum/" + slot, Blob: m.Items[slot].Items.Data})
		}
	}
	for i, sp := range m.Special {
		if sp.Items.Data != "" {
			out = append(out, NamedBlob{Name: "museum/special/" + strconv.Itoa(i), Blob: sp.Items.Data})
		}
	}
	return out
}
