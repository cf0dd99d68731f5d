// Package table is the single-table key-value layer the board is stored in.
//
// Every record is an Item addressed by a composite Key (partition key plus
// sort key). Secondary indexes are declared up front as Index values and are
// sparse: an item is only indexed when it carries the index's hash attribute.
// Backends keep a record and its index entries consistent within one write.
package table

import (
	"context"
	"errors"
	"maps"
	"sort"
)

const (
	AttrPK = "PK"
	AttrSK = "SK"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrConditionFailed = errors.New("condition check failed")
	ErrUnknownIndex    = errors.New("unknown index")
	ErrInvalidItem     = errors.New("item is missing its key attributes")
)

// Key addresses one item.
type Key struct {
	PK string
	SK string
}

// Item is a flat attribute map. An absent attribute is a missing map key;
// empty strings are stored as given.
type Item map[string]string

func (it Item) Key() Key {
	return Key{PK: it[AttrPK], SK: it[AttrSK]}
}

func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	return maps.Clone(it)
}

func (it Item) valid() bool {
	return it[AttrPK] != "" && it[AttrSK] != ""
}

// Index describes a secondary access pattern: items sharing a hash value,
// ordered by their range value.
type Index struct {
	Name      string
	HashAttr  string
	RangeAttr string
}

func (ix Index) entry(it Item) (hash, rng string, ok bool) {
	if it == nil {
		return "", "", false
	}
	hash, ok = it[ix.HashAttr]
	if !ok || hash == "" {
		return "", "", false
	}
	return hash, it[ix.RangeAttr], true
}

// Condition guards a Put.
type Condition int

const (
	// Always overwrites unconditionally.
	Always Condition = iota
	// IfAbsent fails with ErrConditionFailed when the key already exists.
	IfAbsent
	// IfExists fails with ErrConditionFailed when the key does not exist.
	IfExists
)

func (c Condition) check(exists bool) error {
	switch {
	case c == IfAbsent && exists:
		return ErrConditionFailed
	case c == IfExists && !exists:
		return ErrConditionFailed
	}
	return nil
}

type QueryOptions struct {
	Descending bool
	Limit      int
}

// Backend is the storage contract the board needs: point reads and writes,
// index range queries and an unfiltered scan.
type Backend interface {
	Get(ctx context.Context, key Key) (Item, error)
	Put(ctx context.Context, item Item, cond Condition) error
	// Update merges set into the stored item and drops the remove attributes.
	// The item must exist; the merged item is returned.
	Update(ctx context.Context, key Key, set Item, remove []string) (Item, error)
	// Delete removes the item and reports whether it existed.
	Delete(ctx context.Context, key Key) (bool, error)
	Query(ctx context.Context, index string, hashValue string, opts QueryOptions) ([]Item, error)
	Scan(ctx context.Context) ([]Item, error)
	Ping(ctx context.Context) error
	Close() error
}

func mergeItem(old, set Item, remove []string) Item {
	next := old.Clone()
	for _, attr := range remove {
		if attr == AttrPK || attr == AttrSK {
			continue
		}
		delete(next, attr)
	}
	for k, v := range set {
		if k == AttrPK || k == AttrSK {
			continue
		}
		next[k] = v
	}
	return next
}

func indexByName(indexes []Index) map[string]Index {
	out := make(map[string]Index, len(indexes))
	for _, ix := range indexes {
		out[ix.Name] = ix
	}
	return out
}

// sortForIndex orders items by range value with the primary key as tie-break.
func sortForIndex(items []Item, ix Index, opts QueryOptions) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if opts.Descending {
			a, b = b, a
		}
		return lessKey(a[ix.RangeAttr], a.Key(), b[ix.RangeAttr], b.Key())
	})
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func lessKey(ra string, ka Key, rb string, kb Key) bool {
	if ra != rb {
		return ra < rb
	}
	if ka.PK != kb.PK {
		return ka.PK < kb.PK
	}
	return ka.SK < kb.SK
}
