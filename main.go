// Package main is the entry point for the errorwatch alerting worker.
package main

import (
	"errorwatch/cmd"
)

func main() {
	cmd.Execute()
}
