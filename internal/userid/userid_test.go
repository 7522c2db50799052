package userid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const janeID = "/C=DK/O=Grid/CN=Jane Doe/emailAddress=jane@example.org"

func TestClientIDDirRoundTrip(t *testing.T) {
	dir := ClientIDDir(janeID)
	assert.Equal(t, "+C=DK+O=Grid+CN=Jane_Doe+emailAddress=jane@example.org", dir)
	assert.Equal(t, janeID, ClientDirID(dir))
}

func TestAlias(t *testing.T) {
	assert.Equal(t, ClientIDDir(janeID), Alias(janeID))
	assert.Equal(t, "Angstrom", Alias("Ångström"))
	assert.Equal(t, "S_ren", Alias("Søren"))
	assert.Equal(t, "Jose_Nunez", Alias("José Núñez"))
	assert.Equal(t, "jane@example.org", Alias("jane@example.org"))
}

func TestExtractField(t *testing.T) {
	assert.Equal(t, "jane@example.org", ExtractField(janeID, "emailAddress"))
	assert.Equal(t, "Jane Doe", ExtractField(janeID, "CN"))
	assert.Equal(t, "", ExtractField(janeID, "OU"))
	assert.Equal(t, "", ExtractField(janeID, ""))
}
