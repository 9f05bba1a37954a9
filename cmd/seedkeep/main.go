package main

import "github.com/seedkeep/seedkeep/cmd/seedkeep/cmd"

func main() {
	cmd.Execute()
}
