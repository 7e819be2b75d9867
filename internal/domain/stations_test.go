package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStationDirectory(t *testing.T) {
	dir := NewStationDirectory([]Station{
		{ID: "1", Name: " Porto "},
		{ID: "2", Name: "Braga"},
		{ID: "", Name: "ignored"},
	}, ParseStationNames("2:Braga Merelim, bad-pair, 3:Maia,4:"))

	assert.Equal(t, 2, dir.Len())
	assert.Equal(t, "1 - Porto", dir.Place("1"))
	assert.Equal(t, "2 - Braga Merelim", dir.Place("2"), "env names win")
	assert.Equal(t, "3 - Maia", dir.Place("3"))
	assert.Equal(t, "9", dir.Place("9"))
	assert.Equal(t, "UNKNOWN_STATION", dir.Place(""))

	var empty StationDirectory
	assert.Equal(t, "1", empty.Place("1"))
}
