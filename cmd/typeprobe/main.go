package main

import "github.com/dbsmedya/typeprobe/cmd/typeprobe/cmd"

func main() {
	cmd.Execute()
}
