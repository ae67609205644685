package patternio

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// ErrMalformedMacrocell reports a syntactically invalid Macrocell document.
type ErrMalformedMacrocell struct{ Reason string }

func (e *ErrMalformedMacrocell) Error() string {
	return "patternio: malformed macrocell: " + e.Reason
}

// ParseMacrocell decodes a Macrocell document directly into mem's hash-cons
// table, returning the resulting root and its level. Each non-empty,
// non-comment line after the header defines exactly one new node, numbered
// sequentially from 1; later lines may reference earlier ones by that
// number, so structural sharing in the source file is preserved as sharing
// in the table. The last line defined is the root.
func ParseMacrocell(data []byte, mem *memtable.Table) (root quadnode.Idx, sizeLog2 uint, err error) {
	lines := bytes.Split(data, []byte("\n"))

	first := true
	var nodes []quadnode.Idx
	var levels []uint

	for _, raw := range lines {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		if first {
			first = false
			if !strings.HasPrefix(line, "[M2]") {
				return 0, 0, &ErrMalformedMacrocell{"missing [M2] header"}
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		idx, level, isNode, perr := parseMacrocellNodeLine(line, mem, nodes)
		if perr != nil {
			return 0, 0, perr
		}
		if !isNode {
			idx, perr = parseMacrocellLeafLine(line, mem)
			if perr != nil {
				return 0, 0, perr
			}
			level = quadnode.LeafSizeLog2
		}
		nodes = append(nodes, idx)
		levels = append(levels, level)
	}

	if len(nodes) == 0 {
		return 0, 0, &ErrMalformedMacrocell{"no nodes defined"}
	}
	return nodes[len(nodes)-1], levels[len(levels)-1], nil
}

// parseMacrocellNodeLine attempts to parse "k nw ne sw se" and, if shaped
// like one, creates the node in mem. isNode is false (with no error) when
// the line isn't shaped like a node line, so the caller falls back to leaf
// parsing.
func parseMacrocellNodeLine(line string, mem *memtable.Table, nodes []quadnode.Idx) (idx quadnode.Idx, level uint, isNode bool, err error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return 0, 0, false, nil
	}
	nums := make([]int64, 5)
	for i, f := range fields {
		n, perr := strconv.ParseInt(f, 10, 64)
		if perr != nil {
			return 0, 0, false, nil
		}
		nums[i] = n
	}
	k := nums[0]
	if k < int64(quadnode.LeafSizeLog2)+1 || k > 62 {
		return 0, 0, true, &ErrMalformedMacrocell{fmt.Sprintf("size_log2 %d out of range", k)}
	}
	ref := func(n int64) (quadnode.Idx, error) {
		if n == 0 {
			return quadnode.Null, nil
		}
		if n < 1 || int(n) > len(nodes) {
			return 0, &ErrMalformedMacrocell{fmt.Sprintf("line reference %d out of range", n)}
		}
		return nodes[n-1], nil
	}
	nw, err := ref(nums[1])
	if err != nil {
		return 0, 0, true, err
	}
	ne, err := ref(nums[2])
	if err != nil {
		return 0, 0, true, err
	}
	sw, err := ref(nums[3])
	if err != nil {
		return 0, 0, true, err
	}
	se, err := ref(nums[4])
	if err != nil {
		return 0, 0, true, err
	}
	return mem.FindOrCreateNode(nw, ne, sw, se), uint(k), true, nil
}

// parseMacrocellLeafLine parses a leaf description: up to 8 rows of '.'/'*'
// separated by '$', describing an 8x8 cell bitmap.
func parseMacrocellLeafLine(line string, mem *memtable.Table) (quadnode.Idx, error) {
	rows := strings.Split(line, "$")
	if len(rows) > quadnode.LeafSide {
		return 0, &ErrMalformedMacrocell{"leaf description has too many rows"}
	}
	var cells uint64
	for y, row := range rows {
		if len(row) > quadnode.LeafSide {
			return 0, &ErrMalformedMacrocell{"leaf description row too wide"}
		}
		for x, ch := range row {
			switch ch {
			case '*':
				cells |= 1 << (8*uint(y) + uint(x))
			case '.':
			default:
				return 0, &ErrMalformedMacrocell{fmt.Sprintf("unexpected byte %q in leaf description", ch)}
			}
		}
	}
	return mem.FindOrCreateLeaf(cells), nil
}

// WriteMacrocell serializes the subtree rooted at root (level sizeLog2) into
// a Macrocell document, assigning each distinct node a single line number
// and reusing it wherever the node recurs, so shared subtrees are written
// once regardless of how many parents reference them.
func WriteMacrocell(mem *memtable.Table, root quadnode.Idx, sizeLog2 uint) []byte {
	var buf bytes.Buffer
	buf.WriteString("[M2] (gohashlife)\n")

	// The hash-cons tuple space is shared across levels, so the same index
	// can name different regions at different levels; the memo key must
	// carry the level, like the population and hash caches do.
	type nodeKey struct {
		idx   quadnode.Idx
		level uint32
	}
	lineOf := make(map[nodeKey]int)

	var visit func(idx quadnode.Idx, level uint) int
	visit = func(idx quadnode.Idx, level uint) int {
		if idx == quadnode.Null {
			return 0
		}
		if ln, ok := lineOf[nodeKey{idx, uint32(level)}]; ok {
			return ln
		}
		n := mem.Get(idx, level)
		if level == quadnode.LeafSizeLog2 {
			writeMacrocellLeaf(&buf, n.LeafCells())
		} else {
			nw := visit(n.NW, level-1)
			ne := visit(n.NE, level-1)
			sw := visit(n.SW, level-1)
			se := visit(n.SE, level-1)
			fmt.Fprintf(&buf, "%d %d %d %d %d\n", level, nw, ne, sw, se)
		}
		ln := len(lineOf) + 1
		lineOf[nodeKey{idx, uint32(level)}] = ln
		return ln
	}
	visit(root, sizeLog2)

	return buf.Bytes()
}

func writeMacrocellLeaf(buf *bytes.Buffer, cells uint64) {
	for y := 0; y < quadnode.LeafSide; y++ {
		if y > 0 {
			buf.WriteByte('$')
		}
		rowLen := quadnode.LeafSide
		for rowLen > 0 && cells>>(8*uint(y)+uint(rowLen-1))&1 == 0 {
			rowLen--
		}
		for x := 0; x < rowLen; x++ {
			if cells>>(8*uint(y)+uint(x))&1 != 0 {
				buf.WriteByte('*')
			} else {
				buf.WriteByte('.')
			}
		}
	}
	buf.WriteByte('\n')
}
