package ingestor

import "embed"

// MigrationsFS embeds this service's schema so migrations travel inside the
// binary (teacher's pkg/database/client.go go:embed pattern).
//
//go:embed migrations
var MigrationsFS embed.FS
