// Package main is the entry point for the subshift CLI.
package main

import "github.com/mouse-blink/subshift/cmd"

func main() {
	cmd.Execute()
}
