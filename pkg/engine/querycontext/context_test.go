package querycontext

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("generates a token", func(t *testing.T) {
		a := New("", nil, Membership{})
		b := New("", nil, Membership{})
		require.NotEmpty(t, a.Token())
		require.NotEqual(t, a.Token(), b.Token())
	})

	t.Run("copies options", func(t *testing.T) {
		options := map[string]string{"A": "1"}
		qc := New("q1", options, Membership{})
		options["A"] = "2"
		require.Equal(t, map[string]string{"A": "1"}, qc.ConfigOptions())

		got := qc.ConfigOptions()
		got["A"] = "3"
		v, ok := qc.Option("A")
		require.True(t, ok)
		require.Equal(t, "1", v)
	})

	t.Run("membership", func(t *testing.T) {
		qc := New("q1", nil, Membership{Nodes: []Node{{ID: "a"}, {ID: "b", Addr: "10.0.0.2:8889"}}, Self: 1})
		local, ok := qc.Membership().Local()
		require.True(t, ok)
		require.Equal(t, "b", local.ID)

		_, ok = New("q2", nil, Membership{}).Membership().Local()
		require.False(t, ok)
	})
}

func TestContext_Clone(t *testing.T) {
	parent := New("q1", map[string]string{"K": "V"}, Membership{})
	parent.IncrementStep()
	parent.IncrementSubstep()

	child := parent.Clone()
	require.Equal(t, parent.Token(), child.Token())
	require.Equal(t, parent.ConfigOptions(), child.ConfigOptions())
	require.Equal(t, int64(1), child.Step())
	require.Equal(t, int64(1), child.Substep())

	child.IncrementSubstep()
	child.IncrementSubstep()
	require.Equal(t, int64(3), child.Substep())
	require.Equal(t, int64(1), parent.Substep())

	parent.IncrementStep()
	require.Equal(t, int64(2), parent.Step())
	require.Equal(t, int64(0), parent.Substep())
	require.Equal(t, int64(1), child.Step())
}

func TestContext_Options(t *testing.T) {
	qc := New("q1", map[string]string{
		OptionTransformOperatorsBiggerThanGPU: "false",
		OptionCacheMaxFragments:               "8",
		OptionConcatenatingCacheNumBytes:      "2MB",
		"BROKEN":                              "x",
	}, Membership{})

	require.False(t, qc.OptionBool(OptionTransformOperatorsBiggerThanGPU, true))
	require.True(t, qc.OptionBool("MISSING", true))
	require.True(t, qc.OptionBool("BROKEN", true))

	require.Equal(t, int64(8), qc.OptionInt(OptionCacheMaxFragments, 0))
	require.Equal(t, int64(4), qc.OptionInt("BROKEN", 4))

	require.Equal(t, uint64(2_000_000), qc.OptionBytes(OptionConcatenatingCacheNumBytes, 0))
	require.Equal(t, uint64(10), qc.OptionBytes("BROKEN", 10))
}

func TestContext_Logger(t *testing.T) {
	var buf bytes.Buffer
	qc := New("q1", nil, Membership{})
	logger := qc.Logger(log.NewLogfmtLogger(&buf))

	qc.IncrementSubstep()
	require.NoError(t, logger.Log("info", "hello"))
	require.Equal(t, "query_id=q1 step=0 substep=1 info=hello\n", buf.String())
}

func TestInject(t *testing.T) {
	ctx := t.Context()
	_, ok := FromContext(ctx)
	require.False(t, ok)

	qc := New("q1", nil, Membership{})
	got, ok := FromContext(Inject(ctx, qc))
	require.True(t, ok)
	require.Same(t, qc, got)
}
