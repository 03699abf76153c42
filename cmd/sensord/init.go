package main

import (
	"fmt"

	"github.com/marmos91/sensord/pkg/config"
)

func runInit(path string, force bool) error {
	if path == "" {
		written, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.InitConfigToPath(path, force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Edit the file, then start the server with: sensord start")
	return nil
}
