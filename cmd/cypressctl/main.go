package main

import (
	"errors"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/catenarytransit/cypress/cmd/cypressctl/tool/cmd"
	"github.com/catenarytransit/cypress/internal/conf"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, conf.ErrInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
