// Package migrations embeds the schema migration files so the migrate
// binary carries them without a deploy-time copy step.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
