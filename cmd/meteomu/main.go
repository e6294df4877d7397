package main

import "github.com/pfrederiksen/meteomu/internal/cli"

func main() {
	cli.Execute()
}
