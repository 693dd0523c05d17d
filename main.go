package main

import "github.com/user/privaudit/cmd"

func main() {
	cmd.Execute()
}
