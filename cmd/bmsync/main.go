package main

import "github.com/creetelo/bmsync/internal/cli"

func main() {
	cli.Execute()
}
