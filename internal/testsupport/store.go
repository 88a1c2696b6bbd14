package testsupport

import (
	"testing"

	"layerforge/internal/config"
	"layerforge/internal/ledger"
)

// MustOpenLedger opens the ledger for cfg's work directory and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.Layout().LedgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
