package main

import "github.com/bryan-buckman/rssagg/cmd"

func main() {
	cmd.Execute()
}
