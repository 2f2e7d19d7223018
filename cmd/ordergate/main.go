package main

import (
	"log"

	"github.com/TwigBush/ordergate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatal(err)
	}
}
