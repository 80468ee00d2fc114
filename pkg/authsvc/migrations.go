package authsvc

import "embed"

// MigrationsFS embeds this service's schema (teacher's go:embed pattern).
//
//go:embed migrations
var MigrationsFS embed.FS
