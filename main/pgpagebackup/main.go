package main

import (
	"github.com/wal-g/pgpagebackup/cmd/pgpagebackup"
)

func main() {
	pgpagebackup.Execute()
}
