package physical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimize(t *testing.T) {
	t.Run("removes filters that are always true", func(t *testing.T) {
		plan, err := ParsePlan(`LogicalProject(a=[$0])
  LogicalFilter(condition=[true])
    LogicalTableScan(table=[[t]])`)
		require.NoError(t, err)

		Optimize(plan)

		require.Equal(t, 2, plan.Len())
		root, err := plan.Root()
		require.NoError(t, err)
		require.IsType(t, &Scan{}, plan.Children(root)[0])
	})

	t.Run("merges stacked limits", func(t *testing.T) {
		plan, err := ParsePlan(`LogicalSort(offset=[1], fetch=[10])
  LogicalSort(sort0=[$0], dir0=[ASC], offset=[2], fetch=[5])
    LogicalTableScan(table=[[t]])`)
		require.NoError(t, err)

		Optimize(plan)

		require.Equal(t, 2, plan.Len())
		root, err := plan.Root()
		require.NoError(t, err)
		sort := root.(*Sort)
		require.Equal(t, int64(3), sort.Offset)
		require.Equal(t, int64(4), sort.Fetch)
	})

	t.Run("keeps filters with predicates", func(t *testing.T) {
		plan, err := ParsePlan(`LogicalFilter(condition=[>($0, 1)])
  LogicalTableScan(table=[[t]])`)
		require.NoError(t, err)
		Optimize(plan)
		require.Equal(t, 2, plan.Len())
	})
}

func TestComposeLimits(t *testing.T) {
	for _, tt := range []struct {
		name                   string
		innerOffset, innerFetch int64
		outerOffset, outerFetch int64
		offset, fetch           int64
	}{
		{"unbounded inner", 0, -1, 2, 3, 2, 3},
		{"unbounded outer", 1, 4, 0, -1, 1, 4},
		{"outer skips past inner", 0, 2, 5, 3, 5, 0},
		{"both bounded", 2, 5, 1, 10, 3, 4},
	} {
		t.Run(tt.name, func(t *testing.T) {
			offset, fetch := composeLimits(tt.innerOffset, tt.innerFetch, tt.outerOffset, tt.outerFetch)
			require.Equal(t, tt.offset, offset)
			require.Equal(t, tt.fetch, fetch)
		})
	}
}
