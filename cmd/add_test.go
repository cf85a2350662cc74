package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAuthors(t *testing.T) {
	t.Parallel()

	require.Nil(t, splitAuthors(""))
	require.Nil(t, splitAuthors("   "))
	require.Equal(t, []string{"Ada Lovelace"}, splitAuthors("Ada Lovelace"))
	require.Equal(t,
		[]string{"Ada Lovelace", "Charles Babbage"},
		splitAuthors(" Ada Lovelace , Charles Babbage ,"),
	)
}
