package main

import (
	"github.com/lendflow-in/credscore/pkg/cli"
)

func main() {
	cli.Execute()
}
