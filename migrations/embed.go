// Package migrations ships the SQL schema with the binary so the server
// can migrate on boot without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
