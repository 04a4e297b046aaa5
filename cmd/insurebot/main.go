package main

import (
	"log"

	corecmd "github.com/m3rciful/insurebot/core/cmd"
	"github.com/m3rciful/insurebot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		EnvFiles:          []string{".env"},
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
