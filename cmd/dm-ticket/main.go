package main

import "github.com/sodargreen/dm-ticket/internal/cli"

func main() {
	cli.Execute()
}
