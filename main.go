package main

import (
	"os"

	"github.com/niktheblak/esp32-sensor-api/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
