// Package migrations holds the numbered SQL files that build the dashboard
// schema. They are embedded so the server binary can migrate without a
// checkout of the repository.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
