// Command importcli creates a new ledger file by importing a kmymoney
// source file, exercising the §4.H importer end to end.
package main

import (
	"fmt"
	"os"

	"finledger"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: importcli <new-sqlite-path> <kmymoney-source-path>")
		os.Exit(1)
	}
	target, source := os.Args[1], os.Args[2]

	settings, err := finledger.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load settings:", err)
		os.Exit(1)
	}

	engine := finledger.NewEngine(settings)
	if err := engine.NewFile(target, finledger.NewFileKMyMoney, source); err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	defer engine.Close()

	accounts, err := engine.FetchAccounts()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch accounts:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d accounts into %s\n", len(accounts.Accounts), target)

	if err := settings.Save(); err != nil {
		fmt.Fprintln(os.Stderr, "save settings:", err)
		os.Exit(1)
	}
}
