package main

import "sensor-collector/internal/cli"

func main() {
	cli.Execute()
}
