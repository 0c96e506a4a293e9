package results

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/avanrossum/diffract/pkg/scan"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// SourceHash fingerprints the scan geometry, the tree topology and every
// node's resolved result shape. Hosts compare hashes across two points in
// time to decide whether previously computed results are still valid.
func SourceHash(geom *scan.Geometry, tree *workflow.Tree) uint64 {
	d := xxhash.New()
	writeInt := func(v int) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		d.Write(buf[:])
	}
	writeStr := func(s string) {
		writeInt(len(s))
		d.WriteString(s)
	}

	writeInt(int(geom.Order))
	writeInt(len(geom.Dims))
	for _, dim := range geom.Dims {
		writeStr(dim.Label)
		writeInt(dim.Points)
		writeStr(fmt.Sprintf("%g/%g/%s", dim.Offset, dim.Delta, dim.Unit))
	}

	for _, id := range tree.IDs() {
		node, err := tree.Node(id)
		if err != nil {
			continue
		}
		writeInt(id)
		writeInt(node.ParentID())
		writeStr(node.Plugin().Name())
		params := node.Params()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeStr(k)
			writeStr(params[k])
		}
		shape := node.ResultShape()
		writeInt(len(shape))
		for _, s := range shape {
			writeInt(s)
		}
	}
	return d.Sum64()
}
