package main

import (
	"veridoc.io/infrastructure"
	"veridoc.io/infrastructure/env"
)

func init() {
	env.LoadEnv()
}

func main() {
	infrastructure.StartServer()
}
