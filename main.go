// Package main is the entry point for the soltrail application
package main

import (
	"github.com/solwatch/soltrail/cmd"
)

func main() {
	cmd.Execute()
}
