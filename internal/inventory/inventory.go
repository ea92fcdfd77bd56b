// Package inventory turns opaque container blobs (base64 of gzipped tag
// streams) into per-slot item records. One blob is one container; each
// populated slot carries a "tag" compound that holds everything the game
// knows about the item, including the extra-attributes subtree with the
// item's type id and instance id.
package inventory

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"skyvault.gg/internal/nbt"
)

// Stage names the pipeline step a blob failed in. Operators use this to tell
// a corrupt upstream blob from a decoder that is out of date.
type Stage string

const (
	StageBase64    Stage = "base64"
	StageGunzip    Stage = "gunzip"
	StageTagStream Stage = "tag_stream"
	StageShape     Stage = "shape"
)

type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode blob: %s: %v", e.Stage, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error { return &DecodeError{Stage: stage, Err: err} }

// maxNestedBlobs bounds recursive sub-blob decoding (bundles holding
// containers holding bundles and so on). Real data nests two or three
// levels; anything past this is treated as corrupt rather than chased
// forever.
const maxNestedBlobs = 8

// ErrNestingTooDeep reports a blob whose sub-blobs nest past
// maxNestedBlobs. Unlike an ordinary failed sub-decode it is fatal for the
// whole blob, because it means either corrupt data or a decoder bug.
var ErrNestingTooDeep = errors.New("nested blobs exceed depth limit")

// PetInfo is the parsed form of the JSON string some items carry in their
// extra attributes under "petInfo".
type PetInfo struct {
	Type     string  `json:"type"`
	Skin     string  `json:"skin"`
	Tier     string  `json:"tier"`
	Exp      float64 `json:"exp"`
	UniqueID string  `json:"uniqueId"`
}

// Item is one decoded inventory slot: the slot's "tag" compound with the
// slot-level Damage value merged in. Pet is non-nil when the item carried a
// parseable petInfo attribute; the raw JSON string stays in the tag tree
// either way.
type Item struct {
	Tag nbt.Tag
	Pet *PetInfo
}

// ExtraAttributes returns the item's extra-attributes compound.
func (it Item) ExtraAttributes() (nbt.Tag, bool) {
	return it.Tag.Get("ExtraAttributes")
}

// ID returns the item's type identifier, or "" for untagged vanilla items.
func (it Item) ID() string {
	ea, ok := it.ExtraAttributes()
	if !ok {
		return ""
	}
	return ea.GetString("id")
}

// UUID returns the item's instance identifier, or "" when the item is not
// individually tracked.
func (it Item) UUID() string {
	ea, ok := it.ExtraAttributes()
	if !ok {
		return ""
	}
	return ea.GetString("uuid")
}

// Skin returns the applied cosmetic skin id, or "".
func (it Item) Skin() string {
	ea, ok := it.ExtraAttributes()
	if !ok {
		return ""
	}
	return ea.GetString("skin")
}

// DecodeBlob decodes one container blob into its populated slots. Empty
// slots and plain vanilla slots without a tag compound are skipped, so the
// result routinely has fewer records than the container has slots.
func DecodeBlob(b64 string) ([]Item, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, stageErr(StageBase64, err)
	}
	return decodeContainer(raw, 0)
}

func decodeContainer(gzipped []byte, depth int) ([]Item, error) {
	if depth > maxNestedBlobs {
		return nil, stageErr(StageShape, ErrNestingTooDeep)
	}

	zr, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		return nil, stageErr(StageGunzip, err)
	}
	raw, err := io.ReadAll(zr)
	if cerr := zr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, stageErr(StageGunzip, err)
	}

	root, err := nbt.Decode(raw)
	if err != nil {
		return nil, stageErr(StageTagStream, err)
	}

	// Container convention: the root holds exactly one key "i" with the
	// per-slot list.
	slots, ok := root.Get("i")
	if !ok || len(root.Compound) != 1 {
		return nil, stageErr(StageShape, fmt.Errorf("root has keys %v, want single key \"i\"", compoundKeys(root)))
	}
	if slots.Type != nbt.TypeList {
		return nil, stageErr(StageShape, fmt.Errorf("slot list is %s, want List", slots.Type))
	}

	items := make([]Item, 0, len(slots.List))
	for _, slot := range slots.List {
		if slot.Type != nbt.TypeCompound {
			continue
		}
		tag, ok := slot.Get("tag")
		if !ok || tag.Type != nbt.TypeCompound {
			continue // empty slot or plain vanilla item
		}
		merged := cloneCompound(tag)
		if dmg, ok := slot.Get("Damage"); ok {
			merged.Compound["Damage"] = dmg
		}
		merged, err = ensureDecoded(merged, depth)
		if err != nil {
			return nil, err
		}
		items = append(items, promote(merged))
	}
	return items, nil
}

// ensureDecoded walks a decoded tag tree and expands any byte-array field
// that is itself a gzipped container blob (bundle contents and the like)
// into the list of item tags it holds. It returns a new tree; the input is
// not mutated. Byte arrays that look compressed but fail to decode are left
// as raw bytes, except when the failure is the nesting bound, which is a
// real decode error.
func ensureDecoded(t nbt.Tag, depth int) (nbt.Tag, error) {
	switch t.Type {
	case nbt.TypeCompound:
		out := nbt.Tag{Type: nbt.TypeCompound, Compound: make(map[string]nbt.Tag, len(t.Compound))}
		for k, v := range t.Compound {
			dv, err := ensureDecoded(v, depth)
			if err != nil {
				return nbt.Tag{}, err
			}
			out.Compound[k] = dv
		}
		return out, nil

	case nbt.TypeList:
		out := nbt.Tag{Type: nbt.TypeList, Elem: t.Elem, List: make([]nbt.Tag, 0, len(t.List))}
		for _, v := range t.List {
			dv, err := ensureDecoded(v, depth)
			if err != nil {
				return nbt.Tag{}, err
			}
			out.List = append(out.List, dv)
		}
		return out, nil

	case nbt.TypeByteArray:
		if !looksGzipped(t.ByteArray) {
			return t, nil
		}
		sub, err := decodeContainer(t.ByteArray, depth+1)
		if err != nil {
			if errors.Is(err, ErrNestingTooDeep) {
				return nbt.Tag{}, err
			}
			// Not actually a container blob; keep the raw bytes.
			return t, nil
		}
		list := nbt.Tag{Type: nbt.TypeList, Elem: nbt.TypeCompound, List: make([]nbt.Tag, 0, len(sub))}
		for _, it := range sub {
			list.List = append(list.List, it.Tag)
		}
		return list, nil
	}
	return t, nil
}

// promote wraps a fully decoded tag compound as an Item, opportunistically
// parsing a petInfo JSON attribute. A petInfo that fails to parse is not an
// error; the raw string stays in the tree.
func promote(tag nbt.Tag) Item {
	it := Item{Tag: tag}
	ea, ok := tag.Get("ExtraAttributes")
	if !ok {
		return it
	}
	raw := ea.GetString("petInfo")
	if raw == "" {
		return it
	}
	var pet PetInfo
	if err := json.Unmarshal([]byte(raw), &pet); err == nil {
		it.Pet = &pet
	}
	return it
}

func looksGzipped(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}

func cloneCompound(t nbt.Tag) nbt.Tag {
	out := nbt.Tag{Type: nbt.TypeCompound, Compound: make(map[string]nbt.Tag, len(t.Compound))}
	for k, v := range t.Compound {
		out.Compound[k] = v
	}
	return out
}

func compoundKeys(t nbt.Tag) []string {
	keys := make([]string, 0, len(t.Compound))
	for k := range t.Compound {
		keys = append(keys, k)
	}
	return keys
}
