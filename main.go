// The main package for the smartcrawl executable.
package main

import "smartcrawl/cmd"

func main() {
	cmd.Execute()
}
