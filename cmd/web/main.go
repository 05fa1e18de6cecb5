package main

import "mektep_backend/internal/app"

func main() {
	app.Run()
}
