package main

import "github.com/Manu343726/schedcheck/cmd"

func main() {
	cmd.Execute()
}
