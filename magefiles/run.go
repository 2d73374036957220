//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Demo runs the loaderdemo binary with the current directory as game root.
func (Run) Demo() error {
	fmt.Println("Run loaderdemo...")
	if _, err := executeCmd("go", withArgs("run", "./cmd/loaderdemo", "-root", "."), withStream()); err != nil {
		return err
	}
	return nil
}
