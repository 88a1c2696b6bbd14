// Package ledger is the SQLite run journal.
//
// Every pipeline run, each layer it executed, every per-target decision, and
// the per-model token usage are recorded in work_dir/ledger.db. Schema changes
// ship as embedded migrations tracked in schema_migrations. The database runs
// in WAL mode with a busy timeout so the CLI can read history while a run is
// writing.
package ledger
