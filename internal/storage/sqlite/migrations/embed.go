// Package migrations embeds the SQL migrations for the SQLite stores.
//
// The events bundle owns the journal database; the projections bundle owns
// the read-model database. Keeping them separate lets the projection side be
// dropped and rebuilt from the journal without touching event history.
package migrations

import "embed"

// EventsFS holds the event journal migrations.
//
//go:embed events/*.sql
var EventsFS embed.FS

// ProjectionsFS holds the read-model migrations.
//
//go:embed projections/*.sql
var ProjectionsFS embed.FS
