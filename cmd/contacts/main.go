// Package main is the entry point for the contacts service.
package main

import (
	"os"

	"github.com/JonMunkholm/contacts/cmd/contacts/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
