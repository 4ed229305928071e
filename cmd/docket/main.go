package main

import "github.com/turbolytics/docket/internal/cmd"

func main() {
	cmd.Execute()
}
