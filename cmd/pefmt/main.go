package main

import "pefmt/internal/cli"

func main() {
	cli.Execute()
}
