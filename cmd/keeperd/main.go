package main

import (
	"log"

	keeperd "mrtcore/services/keeperd"
)

func main() {
	if err := keeperd.Main(); err != nil {
		log.Fatalf("keeperd: %v", err)
	}
}
