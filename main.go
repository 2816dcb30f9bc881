package main

import "github.com/inovacc/chatdb/cmd"

func main() {
	cmd.Execute()
}
