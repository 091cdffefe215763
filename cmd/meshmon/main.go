package main

import "meshmon/internal/cli"

func main() {
	cli.Execute()
}
