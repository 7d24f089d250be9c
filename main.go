package main

import "github.com/jmehdipour/payroll-projector/cmd"

func main() {
	cmd.Execute()
}
