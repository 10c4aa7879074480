package main

import "arbitrator/internal/cli"

func main() {
	cli.Execute()
}
