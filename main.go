package main

import "github.com/alioptr7/the-first-sub000/cmd"

func main() {
	cmd.Execute()
}
