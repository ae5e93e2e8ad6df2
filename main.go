package main

import (
	"log"

	"ticket-settlement/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
