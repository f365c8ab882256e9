package main

import (
	"github.com/olivermeyer777/post-translatorv1/cmd"
	"github.com/olivermeyer777/post-translatorv1/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
