// The main package for the steamscout executable.
package main

import "github.com/lmei/steamscout/cmd"

func main() {
	cmd.Execute()
}
