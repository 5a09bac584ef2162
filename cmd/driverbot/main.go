package main

import (
	"log/slog"
	"os"

	"driver_bot/internal/driverbot"
)

func main() {
	if err := driverbot.Run(); err != nil {
		slog.Error("driver bot stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
