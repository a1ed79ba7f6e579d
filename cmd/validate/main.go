package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <quests.json|yaml> <npcs.json|yaml>\n", os.Args[0])
		os.Exit(1)
	}

	validator := &CatalogValidator{}
	if err := validator.validateFiles(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Catalog files are valid!")
}
