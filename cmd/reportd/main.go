// Command reportd serves cached, hierarchy-scoped reports over HTTP.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
