package physical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTableScanInfo(t *testing.T) {
	t.Run("bindable and plain scans", func(t *testing.T) {
		info, err := GetTableScanInfo("BindableScan(table=[[main, orders]], projects=[[1, 3]])\nScan(table=[[customers]])\n")
		require.NoError(t, err)
		require.Equal(t, []string{
			"BindableScan(table=[[main, orders]], projects=[[1, 3]])",
			"Scan(table=[[customers]])",
		}, info.Steps)
		require.Equal(t, []string{"orders", "customers"}, info.TableNames)
		require.Equal(t, [][]int{{1, 3}, {}}, info.Columns)
	})

	t.Run("non-scan lines are skipped", func(t *testing.T) {
		info, err := GetTableScanInfo(joinPlan)
		require.NoError(t, err)
		require.Equal(t, []string{"orders", "customers"}, info.TableNames)
		require.Equal(t, [][]int{{1, 3}, {}}, info.Columns)
		require.Equal(t, []string{
			"    BindableTableScan(table=[[main, orders]], projects=[[1, 3]])",
			"    LogicalTableScan(table=[[main, customers]])",
		}, info.Steps)
	})

	t.Run("projects makes a scan bindable", func(t *testing.T) {
		info, err := GetTableScanInfo("LogicalTableScan(table=[[other, t]], projects=[[0]])")
		require.NoError(t, err)
		require.Equal(t, []string{"other.t"}, info.TableNames)
		require.Equal(t, [][]int{{0}}, info.Columns)
	})

	t.Run("no scans", func(t *testing.T) {
		info, err := GetTableScanInfo("LogicalValues(tuples=[[{ 1 }]])\n")
		require.NoError(t, err)
		require.Empty(t, info.Steps)
		require.Empty(t, info.TableNames)
		require.Empty(t, info.Columns)
	})

	t.Run("non-integer projection", func(t *testing.T) {
		_, err := GetTableScanInfo("BindableScan(table=[[main, t]], projects=[[1, x]])")
		require.ErrorIs(t, err, ErrParse)
	})
}
