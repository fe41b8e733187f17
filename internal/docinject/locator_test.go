package docinject

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docPage(title, sourceHref string) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head>
<body>
<div class="decl"><p class="gh_nav_link"><a href="%s">source</a></p></div>
</body></html>`, title, sourceHref))
}

func TestLocateDeclaration(t *testing.T) {
	t.Parallel()

	loc, err := LocateDeclaration(docPage("Nat.add_comm", "vscode://file//proj/Basic.lean:12:5"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "Nat.add_comm", loc.Name)
	assert.Equal(t, "/proj/Basic.lean", loc.SourceFile)
	assert.Equal(t, 11, loc.Line, "one-based line becomes zero-based")
	assert.Equal(t, 4, loc.Column)
}

func TestLocateDeclaration_NoSourceLink(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head><title>Index</title></head><body><a href="other.html">x</a></body></html>`)
	loc, err := LocateDeclaration(page)
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestParseSourceURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		href string
		file string
		line int
		col  int
	}{
		{"line and column", "vscode://file//proj/A.lean:3:7", "/proj/A.lean", 2, 6},
		{"line only", "vscode://file//proj/A.lean:3", "/proj/A.lean", 2, 0},
		{"no position", "vscode://file//proj/A.lean", "/proj/A.lean", -1, 0},
		{"single slash path", "vscode://file/proj/A.lean:1:1", "/proj/A.lean", 0, 0},
		{"colon in path", "vscode://file//proj/v1:2/A.lean:3:7", "/proj/v1:2/A.lean", 2, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loc, err := parseSourceURL(tc.href)
			require.NoError(t, err)
			assert.Equal(t, tc.file, loc.SourceFile)
			assert.Equal(t, tc.line, loc.Line)
			assert.Equal(t, tc.col, loc.Column)
		})
	}
}

func TestParseSourceURL_Empty(t *testing.T) {
	t.Parallel()

	_, err := parseSourceURL("vscode://file/")
	assert.Error(t, err)
}
