// Package all links every storage backend into the binary.
package all

import (
	_ "dashboard/internal/storage/mssql"
	_ "dashboard/internal/storage/postgres"
	_ "dashboard/internal/storage/sqlite"
)
