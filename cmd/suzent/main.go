package main

import "github.com/cyzus/suzent-sub001/cmd/suzent/cli"

func main() {
	cli.Execute()
}
