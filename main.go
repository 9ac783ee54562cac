package main

import (
	"github.com/sahilchouksey/learnhub-api/app"
)

func main() {
	app.Execute()
}
