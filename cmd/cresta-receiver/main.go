// Command cresta-receiver decodes Cresta/Hideki 433MHz weather sensors from
// a GPIO receiver line and publishes their measurements.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
