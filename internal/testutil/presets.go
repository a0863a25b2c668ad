package testutil

import "fmt"

// WithLinear adds n single-parent commits labelled prefix1..prefixN on top
// of parent ("" starts a new root).
func (b *Builder) WithLinear(prefix string, n int, parent string) *Builder {
	for i := 1; i <= n; i++ {
		label := fmt.Sprintf("%s%d", prefix, i)
		var opts []CommitOption
		if parent != "" {
			opts = append(opts, Parents(parent))
		}
		opts = append(opts, Subject(fmt.Sprintf("%s change %d", prefix, i)))
		b.WithCommit(label, opts...)
		parent = label
	}
	return b
}

// WithFeatureMerge adds a branch of n commits forked at base and a merge
// commit joining it into mainTip. Branch commits are labelled
// branch1..branchN; the merge is labelled merge.
func (b *Builder) WithFeatureMerge(merge, mainTip, base, branch string, n int) *Builder {
	b.WithLinear(branch, n, base)
	return b.WithCommit(merge,
		Parents(mainTip, fmt.Sprintf("%s%d", branch, n)),
		Subject(fmt.Sprintf("Merge branch '%s'", branch)))
}
