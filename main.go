package main

import "github.com/buildforge/buildforge/cmd"

func main() {
	cmd.Execute()
}
