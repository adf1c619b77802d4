package diffcomposer

type opKind uint8

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

// edit is one step of an edit script. a and b index the original and
// candidate sequences at the point the step applies.
type edit struct {
	kind opKind
	a, b int
}

// span is a maximal run of non-equal edits: orig[a0:a1] becomes new[b0:b1].
type span struct {
	a0, a1 int
	b0, b1 int
}

// editScript aligns a and b on a longest common subsequence. Ties prefer
// deletion, so a run of changes always lists its deletions first.
func editScript(a, b []string) []edit {
	// Common prefix and suffix never need the quadratic table.
	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}

	script := make([]edit, 0, len(a)+len(b))
	for i := 0; i < pre; i++ {
		script = append(script, edit{kind: opEqual, a: i, b: i})
	}

	ma, mb := a[pre:len(a)-suf], b[pre:len(b)-suf]
	n, m := len(ma), len(mb)
	if n > 0 && m > 0 {
		// lcs[i][j] is the LCS length of ma[i:] and mb[j:].
		width := m + 1
		lcs := make([]int32, (n+1)*width)
		for i := n - 1; i >= 0; i-- {
			for j := m - 1; j >= 0; j-- {
				if ma[i] == mb[j] {
					lcs[i*width+j] = lcs[(i+1)*width+j+1] + 1
				} else if down, right := lcs[(i+1)*width+j], lcs[i*width+j+1]; down >= right {
					lcs[i*width+j] = down
				} else {
					lcs[i*width+j] = right
				}
			}
		}

		i, j := 0, 0
		for i < n && j < m {
			switch {
			case ma[i] == mb[j]:
				script = append(script, edit{kind: opEqual, a: pre + i, b: pre + j})
				i++
				j++
			case lcs[(i+1)*width+j] >= lcs[i*width+j+1]:
				script = append(script, edit{kind: opDelete, a: pre + i, b: pre + j})
				i++
			default:
				script = append(script, edit{kind: opInsert, a: pre + i, b: pre + j})
				j++
			}
		}
		for ; i < n; i++ {
			script = append(script, edit{kind: opDelete, a: pre + i, b: pre + m})
		}
		for ; j < m; j++ {
			script = append(script, edit{kind: opInsert, a: pre + n, b: pre + j})
		}
	} else {
		for i := 0; i < n; i++ {
			script = append(script, edit{kind: opDelete, a: pre + i, b: pre})
		}
		for j := 0; j < m; j++ {
			script = append(script, edit{kind: opInsert, a: pre, b: pre + j})
		}
	}

	for k := 0; k < suf; k++ {
		script = append(script, edit{kind: opEqual, a: len(a) - suf + k, b: len(b) - suf + k})
	}
	return script
}

// spans groups an edit script into runs of changes, in ascending order.
func spans(script []edit) []span {
	var out []span
	var cur *span
	for _, e := range script {
		if e.kind == opEqual {
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = &span{a0: e.a, a1: e.a, b0: e.b, b1: e.b}
		}
		if e.kind == opDelete {
			cur.a1 = e.a + 1
		} else {
			cur.b1 = e.b + 1
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
