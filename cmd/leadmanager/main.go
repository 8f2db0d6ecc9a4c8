// Command leadmanager records sales leads, reports on them and hands them off
// as a CSV or XLSX export, optionally erasing the store afterwards.
//
// Usage:
//
//	leadmanager serve
//	leadmanager add --name "Ada" --email ada@example.com [--phone ...] [--source LinkedIn] [--score 80] [--notes ...]
//	leadmanager list [--status Qualified] [--json]
//	leadmanager set-status <email> <status>
//	leadmanager summary
//	leadmanager export [--format csv|xlsx] [--output path|-] [--erase] [--yes]
//
// Configuration is read from LEADMANAGER_* environment variables.
package main

import (
	"fmt"
	"io"
	"os"

	// Blank-import every supported driver so it self-registers with database/sql.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}
