package observation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeciesListFind(t *testing.T) {
	t.Parallel()

	list := ProjectSpeciesList{
		{TaxonID: 9083, CommonName: "Northern Cardinal", SecondaryCode: "norcar", Count: 12},
		{TaxonID: 0, CommonName: "Snow Bunting", SecondaryCode: "snobun", Count: 0},
		{TaxonID: 144849, CommonName: "Mallard × American Black Duck", Rank: "hybrid", Count: 1},
	}

	rec, ok := list.Find(9083)
	assert.True(t, ok)
	assert.Equal(t, "Northern Cardinal", rec.CommonName)
	_, ok = list.Find(1)
	assert.False(t, ok)
}

func TestHybridDetection(t *testing.T) {
	t.Parallel()

	assert.True(t, (&SpeciesRecord{Rank: "hybrid"}).IsHybrid())
	assert.True(t, (&SpeciesRecord{ScientificName: "Anas platyrhynchos × rubripes"}).IsHybrid())
	assert.False(t, (&SpeciesRecord{Rank: "species", ScientificName: "Cardinalis cardinalis"}).IsHybrid())
	assert.True(t, (&SpeciesRecord{Count: 0}).Synthesized())
}
