// Package all registers every storage backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "menuscrape/internal/storage/mssql"
	_ "menuscrape/internal/storage/postgres"
	_ "menuscrape/internal/storage/sqlite"
)
