// Package kongtest helps test kong command line definitions.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

// Help renders the help output for cli, which will have been populated with its defaults.
func Help(t *testing.T, cli interface{}) string {
	t.Helper()
	w := bytes.NewBuffer(nil)
	rc := -1
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(w, w),
		kong.Exit(func(i int) {
			rc = i
		}),
	)
	assert.Check(t, err)

	_, err = app.Parse([]string{"--help"})
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(0, rc))

	return w.String()
}

// Parse parses args into cli, failing the test on any error.
func Parse(t *testing.T, cli interface{}, args ...string) {
	t.Helper()
	app, err := kong.New(cli, kong.Name("test-app"), kong.Exit(func(int) {}))
	assert.Assert(t, err)
	_, err = app.Parse(args)
	assert.Assert(t, err)
}
