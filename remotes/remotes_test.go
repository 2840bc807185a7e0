package remotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/mfshell/federation"
)

func TestInstallRegistersEveryExposedUnit(t *testing.T) {
	catalog := federation.NewCatalog()
	bundled, err := Install(catalog, nil)
	require.NoError(t, err)
	assert.Len(t, bundled, 2)

	assert.Equal(t, []string{"mfe1:Feature1Component", "mfe2:Feature2Component"}, catalog.Handles())

	_, err = Install(catalog, nil)
	assert.ErrorIs(t, err, federation.ErrDuplicateHandle)
}

func TestLookup(t *testing.T) {
	reg, err := Lookup("mfe2", nil)
	require.NoError(t, err)
	assert.Equal(t, "mfe2", reg.Name())

	_, err = Lookup("mfe9", nil)
	assert.Error(t, err)
}
