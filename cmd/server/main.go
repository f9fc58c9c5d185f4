package main

import "stagesync/cmd/cli"

func main() {
	cli.Execute()
}
