// Command demo opens (or creates) a ledger file and prints its account
// count and last year's monthly networth history, exercising the §6 command
// surface end to end.
package main

import (
	"fmt"
	"os"
	"time"

	"finledger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: demo <path-to-sqlite-file>")
		os.Exit(1)
	}
	path := os.Args[1]

	settings, err := finledger.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load settings:", err)
		os.Exit(1)
	}

	engine := finledger.NewEngine(settings)
	if err := engine.OpenFile(path); err != nil {
		fmt.Fprintln(os.Stderr, "open file:", err)
		os.Exit(1)
	}
	defer engine.Close()

	accounts, err := engine.FetchAccounts()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch accounts:", err)
		os.Exit(1)
	}
	fmt.Printf("%d accounts\n", len(accounts.Accounts))

	now := time.Now().UTC()
	yearAgo := now.AddDate(-1, 0, 0)
	const defaultCurrencyID = 1 // first commodity inserted by a new file or import
	history, err := engine.NetworthHistory(yearAgo, now, defaultCurrencyID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "networth history:", err)
		os.Exit(1)
	}
	for _, p := range history {
		fmt.Printf("%s value=%.2f diff=%.2f average=%.2f\n", p.Date.Format("2006-01"), p.Value, p.Diff, p.Average)
	}

	if err := settings.Save(); err != nil {
		fmt.Fprintln(os.Stderr, "save settings:", err)
		os.Exit(1)
	}
}
