// main.go
package main

import (
	"os"

	"isp-portal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
