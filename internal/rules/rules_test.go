package rules_test

import (
	"reflect"
	"testing"

	"skyvault.gg/internal/inventory"
	"skyvault.gg/internal/nbt"
	"skyvault.gg/internal/nbt/nbttest"
	"skyvault.gg/internal/rules"
)

func item(id, uuid string, extra map[string]nbt.Tag) inventory.Item {
	ea := map[string]nbt.Tag{"id": nbttest.String(id)}
	if uuid != "" {
		ea["uuid"] = nbttest.String(uuid)
	}
	for k, v := range extra {
		ea[k] = v
	}
	return inventory.Item{Tag: nbttest.Compound(map[string]nbt.Tag{
		"ExtraAttributes": nbttest.Compound(ea),
	})}
}

func TestEvaluate_SingleRule(t *testing.T) {
	table := rules.Parse(map[string]string{"POTATO_BASKET": "ROLE_A"})

	items := map[string]inventory.Item{
		"uuid-1": item("POTATO_BASKET", "uuid-1", nil),
	}
	got := table.Evaluate(items, nil)
	if !reflect.DeepEqual(got, []string{"ROLE_A"}) {
		t.Fatalf("got %v, want [ROLE_A]", got)
	}

	// Nothing owned, nothing granted.
	if got := table.Evaluate(nil, nil); len(got) != 0 {
		t.Fatalf("empty items granted %v", got)
	}
}

func TestEvaluate_ConjunctiveRule(t *testing.T) {
	table := rules.Parse(map[string]string{"X,Y": "ROLE_B"})

	// Partial ownership grants nothing.
	partial := map[string]inventory.Item{"u1": item("X", "u1", nil)}
	if got := table.Evaluate(partial, nil); len(got) != 0 {
		t.Fatalf("partial match granted %v", got)
	}

	full := map[string]inventory.Item{
		"u1": item("X", "u1", nil),
		"u2": item("Y", "u2", nil),
	}
	if got := table.Evaluate(full, nil); !reflect.DeepEqual(got, []string{"ROLE_B"}) {
		t.Fatalf("got %v, want [ROLE_B]", got)
	}
}

func TestEvaluate_AppliedSkins(t *testing.T) {
	table := rules.Parse(map[string]string{"PET_SKIN_TWILIGHT": "ROLE_C"})

	got := table.Evaluate(nil, []string{"PET_SKIN_TWILIGHT", "PET_SKIN_TWILIGHT"})
	if !reflect.DeepEqual(got, []string{"ROLE_C"}) {
		t.Fatalf("got %v, want [ROLE_C]", got)
	}
}

func TestEvaluate_ItemSkinAttribute(t *testing.T) {
	table := rules.Parse(map[string]string{"FROSTY": "ROLE_D"})

	items := map[string]inventory.Item{
		"u1": item("SNOW_SHOVEL", "u1", map[string]nbt.Tag{"skin": nbttest.String("FROSTY")}),
	}
	if got := table.Evaluate(items, nil); !reflect.DeepEqual(got, []string{"ROLE_D"}) {
		t.Fatalf("got %v, want [ROLE_D]", got)
	}
}

func TestEvaluate_DuplicateRolesCollapse(t *testing.T) {
	table := rules.Parse(map[string]string{
		"A": "ROLE_X",
		"B": "ROLE_X",
	})
	items := map[string]inventory.Item{
		"u1": item("A", "u1", nil),
		"u2": item("B", "u2", nil),
	}
	if got := table.Evaluate(items, nil); !reflect.DeepEqual(got, []string{"ROLE_X"}) {
		t.Fatalf("got %v, want single ROLE_X", got)
	}
}

func TestEvaluate_AttributeRules(t *testing.T) {
	table := rules.Table{
		Attribute: []rules.AttributeRule{
			{ItemID: "DCTR_SPACE_HELM", Attribute: "sender_name", Role: "ROLE_SENDER"},
			{ItemID: "DCTR_SPACE_HELM", Attribute: "raffle_year", Role: "ROLE_RAFFLE"},
		},
	}

	plain := map[string]inventory.Item{"u1": item("DCTR_SPACE_HELM", "u1", nil)}
	if got := table.Evaluate(plain, nil); len(got) != 0 {
		t.Fatalf("plain helm granted %v", got)
	}

	marked := map[string]inventory.Item{
		"u1": item("DCTR_SPACE_HELM", "u1", map[string]nbt.Tag{
			"sender_name": nbttest.String("someone"),
			"raffle_year": nbttest.Int(2023),
		}),
	}
	got := table.Evaluate(marked, nil)
	want := []string{"ROLE_RAFFLE", "ROLE_SENDER"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCandidates(t *testing.T) {
	items := map[string]inventory.Item{
		"u1": item("SWORD", "u1", map[string]nbt.Tag{"skin": nbttest.String("FROSTY")}),
		"u2": item("SWORD", "u2", nil),
	}
	got := rules.Candidates(items, []string{"PET_SKIN_TWILIGHT", ""})
	want := map[string]bool{"SWORD": true, "FROSTY": true, "PET_SKIN_TWILIGHT": true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
