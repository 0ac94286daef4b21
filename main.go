package main

import (
	"log"

	"github.com/agrilink/fulfillment/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
