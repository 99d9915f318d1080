package cmd

import (
	"fmt"
)

const banner = `
  _____         _             _ _
 |_   _|_ _ ___| | ____   ____(_) |
   | |/ _` + "`" + ` / __| |/ /\ \ / / _ \ | |
   | | (_| \__ \   <  \ V /  __/ | |
   |_|\__,_|___/_|\_\  \_/ \___|_|_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Task manager - Version %s\x1b[0m\n\n", Version)
}
