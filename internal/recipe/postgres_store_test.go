package recipe

import (
	"testing"

	"github.com/samsavage/railgun-mcp/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	testStoreContract(t, NewPostgresStore(db))
}
