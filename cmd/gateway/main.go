// cmd/gateway/main.go

// Command gateway polls a boiler controller over Modbus RTU and publishes
// its telemetry over MQTT.
package main

import (
	"fmt"
	"os"
)

// version is the running image version, fixed-width zero-padded so that
// lexicographic order is numeric order. Overridden at link time.
var version = "000.000.023"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
