package main

import "github.com/blogboost/ranktracker/cmd"

func main() {
	cmd.Execute()
}
