// Command panoptikon is the CLI entrypoint: search, rules, extract, jobs,
// serve, version.
package main

import "github.com/panoptikon-go/panoptikon/internal/cli"

func main() {
	cli.Execute()
}
