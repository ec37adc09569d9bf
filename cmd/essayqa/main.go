// Package main is the entry point of the essayqa command.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/essay-qa/internal/essayqa"
)

func main() {
	essayqa.NewApp().Run()
}
