package main

import "github.com/ValentinKolb/raftstore/cmd"

func main() {
	cmd.Execute()
}
