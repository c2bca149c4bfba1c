package main

import (
	"github.com/ilindan-dev/availability-notifier/internal/app"
	"go.uber.org/fx"
)

// main is the entry point for the Event Intake worker.
func main() {
	fx.New(app.WorkerModule).Run()
}
