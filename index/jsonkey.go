package index

import (
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/gjson"
)

// jsonKeyEntry is one (row, inline value) tuple under a pointer.
type jsonKeyEntry struct {
	row    uint32
	inline InlineValue
}

// MemJSONKeyIndex extracts primitive values under JSON pointers at build
// time. Rows whose value under a pointer is missing or not a primitive are
// recorded as non-inlinable; the executor resolves those against the column.
type MemJSONKeyIndex struct {
	// entries[path] lists the inlinable rows, ascending by row.
	entries map[string][]jsonKeyEntry
	// seen[path] marks rows where the path resolved to anything at all.
	seen    map[string]*roaring.Bitmap
	numRows int
}

var _ JSONKeyIndex = (*MemJSONKeyIndex)(nil)

// NewMemJSONKeyIndex builds the index from raw documents; a nil entry is a
// null row.
func NewMemJSONKeyIndex(docs [][]byte) *MemJSONKeyIndex {
	idx := &MemJSONKeyIndex{
		entries: make(map[string][]jsonKeyEntry),
		seen:    make(map[string]*roaring.Bitmap),
		numRows: len(docs),
	}
	for row, doc := range docs {
		if doc == nil {
			continue
		}
		parsed := gjson.ParseBytes(doc)
		idx.walk("", parsed, uint32(row))
	}
	return idx
}

func (idx *MemJSONKeyIndex) walk(path string, v gjson.Result, row uint32) {
	if path != "" {
		bm, ok := idx.seen[path]
		if !ok {
			bm = roaring.New()
			idx.seen[path] = bm
		}
		bm.Add(row)
	}

	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			idx.walk(path+"/"+escapePointerToken(key.String()), val, row)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			idx.walk(path+"/"+strconv.Itoa(i), val, row)
			i++
			return true
		})
	default:
		if path == "" {
			return
		}
		if inline, ok := inlineOf(v); ok {
			idx.entries[path] = append(idx.entries[path], jsonKeyEntry{row: row, inline: inline})
		}
	}
}

func inlineOf(v gjson.Result) (InlineValue, bool) {
	switch v.Type {
	case gjson.Number:
		// Integral numbers inline as INT64, everything else as DOUBLE.
		if f := v.Float(); f == float64(int64(f)) && !strings.ContainsAny(v.Raw, ".eE") {
			return InlineValue{Type: JSONTypeInt64, I64: v.Int()}, true
		}
		return InlineValue{Type: JSONTypeDouble, F64: v.Float()}, true
	case gjson.String:
		return InlineValue{Type: JSONTypeString, Str: v.String()}, true
	case gjson.True:
		return InlineValue{Type: JSONTypeBool, B: true}, true
	case gjson.False:
		return InlineValue{Type: JSONTypeBool, B: false}, true
	default:
		return InlineValue{}, false
	}
}

func escapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

// FilterByPath runs fn over every row in [0, activeCount) and returns the
// accepted rows. Rows the index could not inline under path are handed to
// fn with inlined=false so the caller can fall back to the document.
func (idx *MemJSONKeyIndex) FilterByPath(path string, activeCount int, isGrowing, strongConsistency bool,
	fn JSONFilterFunc) (*roaring.Bitmap, error) {
	inlined := make(map[uint32]InlineValue, len(idx.entries[path]))
	for _, e := range idx.entries[path] {
		inlined[e.row] = e.inline
	}

	// Rows past the build point are never inlinable, growing or not; a
	// strong-consistency read just means the caller must see them at all,
	// which the fallback branch provides.
	covered := idx.numRows

	res := roaring.New()
	for row := 0; row < activeCount; row++ {
		r := uint32(row)
		if row < covered {
			if v, ok := inlined[r]; ok {
				if fn(r, true, v) {
					res.Add(r)
				}
				continue
			}
		}
		if fn(r, false, InlineValue{}) {
			res.Add(r)
		}
	}
	return res, nil
}
