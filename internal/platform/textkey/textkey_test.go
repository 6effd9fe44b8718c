package textkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "dune", Fold("  ＤＵＮＥ "))
	assert.Equal(t, "die strasse", Fold("Die Straße"))
}

func TestISBN(t *testing.T) {
	assert.Equal(t, "9780441172719", ISBN("978-0-441-17271-9"))
	assert.Equal(t, "0441", ISBN("0 441"))
	assert.Equal(t, "", ISBN(" - "))
}

func TestListing(t *testing.T) {
	assert.Equal(t, "dune messiah\nfrank herbert", Listing("Dune Messiah", "Frank Herbert"))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%dune%", LikePattern("dune"))
	assert.Equal(t, "%100!% !_ok!!%", LikePattern("100% _ok!"))
}
