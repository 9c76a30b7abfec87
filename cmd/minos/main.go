package main

import "github.com/minos-eval/minos/cmd/minos/cmd"

func main() {
	cmd.Execute()
}
