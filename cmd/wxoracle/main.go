// Command wxoracle geocodes a location, fans out to several weather
// models, and prints or serves their consensus forecast.
package main

import (
	"os"

	"github.com/meteomancer/weatheroracle/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
