package embedded

import _ "embed"

// Database migrations.

// DBMigration1x0 is the initial database setup from first version.
//
//go:embed sql/1x0.sql
var DBMigration1x0 string
