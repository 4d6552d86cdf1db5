package main

import (
	"github.com/amlguard/compliance-api/app"
	"github.com/gofiber/fiber/v2/log"
)

func main() {
	// setup and run app
	err := app.SetupAndRunServer()
	if err != nil {
		log.Error(err)
		panic(err)
	}
}
