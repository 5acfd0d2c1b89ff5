/*
Package db contains tools for working safely with the collector's SQLite database.

There are tools for:
- opening the database with the pragmas the collector relies on
- transactions (including rollbacks on error or panic)
- observability (both for queries and connection info)
- health checks
*/
package db
