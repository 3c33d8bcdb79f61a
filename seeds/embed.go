// Package seeds embeds the seed files applied by `migrate seed`.
package seeds

import "embed"

//go:embed *.sql
var Files embed.FS
