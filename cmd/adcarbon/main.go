package main

import "adcarbon/internal/cli"

func main() {
	cli.Execute()
}
