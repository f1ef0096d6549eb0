package main

import (
	"github.com/logwirehq/logwire"

	_ "github.com/logwirehq/logwire/example/urlprobe"
)

func main() {
	logwire.Execute()
}
