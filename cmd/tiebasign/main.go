package main

import (
	_ "time/tzdata"

	"github.com/vietddude/tiebasign/internal/cli"
)

func main() {
	cli.Execute()
}
