package main

import (
	"log"
	"os"

	"agentbacktest/cmd"
)

func main() {
	apiHandler, err := cmd.InitializeDependencies(os.Getenv("AGENTBT_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	defer cmd.CloseDependencies(apiHandler)

	if err := apiHandler.StartApi(apiHandler.Port); err != nil {
		log.Fatal(err)
	}
}
