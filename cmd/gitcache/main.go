// Command gitcache accelerates npm install for projects with Git-sourced
// dependencies. Run it in place of npm install, or as a prelude to it.
package main

import "github.com/gitcache-dev/gitcache/cmd"

func main() {
	cmd.Execute()
}
