package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesIdentical(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Lines("a\nb\n", "a\nb\n", "builtin", "current"))
}

func TestLinesSingleChange(t *testing.T) {
	t.Parallel()

	out := Lines("Check {report}\nBe strict.\nAnswer briefly.\n", "Check {report}\nBe lenient.\nAnswer briefly.\n", "builtin", "current")
	assert.Equal(t, "--- builtin\n+++ current\n Check {report}\n-Be strict.\n+Be lenient.\n Answer briefly.\n", out)
}

func TestLinesWithoutTrailingNewline(t *testing.T) {
	t.Parallel()

	out := Lines("one", "one\ntwo", "a", "b")
	assert.Contains(t, out, "+two\n")
	assert.NotContains(t, out, "+\n")
}

func TestLinesTruncates(t *testing.T) {
	t.Parallel()

	var before strings.Builder
	for i := 0; i < 3000; i++ {
		fmt.Fprintf(&before, "line %d\n", i)
	}
	out := Lines(before.String(), "", "a", "b")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, maxDiffLines+1)
	assert.Equal(t, truncateMessage, lines[len(lines)-1])
}

func TestCount(t *testing.T) {
	t.Parallel()

	s := Count("a\nb\nc\n", "a\nx\ny\nc\n")
	assert.Equal(t, Stats{Added: 2, Removed: 1}, s)
}
