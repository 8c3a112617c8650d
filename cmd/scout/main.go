package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
