package main

import "github.com/lantern-labs/lantern/cmd"

func main() {
	cmd.Execute()
}
