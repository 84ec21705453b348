package main

import (
	"fmt"
	"os"
)

const banner = `
       __              __                __       __
  ____/ /_  ___  ____ _/ /__      ______ _/ /______/ /_
 / ___/ __ \/ _ \/ __ '/ __/ | /| / / __ '/ __/ ___/ __ \
/ /__/ / / /  __/ /_/ / /_ | |/ |/ / /_/ / /_/ /__/ / / /
\___/_/ /_/\___/\__,_/\__/ |__/|__/\__,_/\__/\___/_/ /_/

  :: cheatwatch :: cheat artifact scanner
`

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		os.Exit(1)
	}
}
