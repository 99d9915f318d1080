package main

import "github.com/jmcleod/taskveil/cmd/taskveil/cmd"

func main() {
	cmd.Execute()
}
