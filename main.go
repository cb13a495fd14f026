package main

import "github.com/parity-bridges/finality-relayer/cmd"

func main() {
	cmd.Execute()
}
