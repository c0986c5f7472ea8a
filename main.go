/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "flowbridge/cmd"

func main() {
	cmd.Execute()
}
