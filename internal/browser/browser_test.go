package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorConstructors(t *testing.T) {
	assert.Equal(t, Locator{Sel: "#id", By: ByQuery}, Query("#id"))
	assert.Equal(t, Locator{Sel: "name", By: ByID}, ID("name"))
	assert.Equal(t, Locator{Sel: "//button", By: BySearch}, Search("//button"))
}

func TestQueryOptions(t *testing.T) {
	for _, loc := range []Locator{Query("a"), ID("b"), Search("//c")} {
		assert.Len(t, loc.queryOptions(), 1)
	}
}
