package main

import (
	"log"

	"github.com/assessrec/assessrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
