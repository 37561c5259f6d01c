package main

import (
	"log"

	"github.com/psds-microservice/ticket-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
