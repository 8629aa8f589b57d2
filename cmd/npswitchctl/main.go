// npswitchctl -- CLI client for the npswitch daemon's admin façade.
package main

import "github.com/npsb/npswitch/cmd/npswitchctl/commands"

func main() {
	commands.Execute()
}
