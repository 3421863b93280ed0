// The main package for the bookscout executable.
package main

import "github.com/bookscout/bookscout/cmd"

func main() {
	cmd.Execute()
}
