package main

import "github.com/sriramreddyM/coco-annotator/cmd"

func main() {
	cmd.Execute()
}
