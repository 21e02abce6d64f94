package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewCLI().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
