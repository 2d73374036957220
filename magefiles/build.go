//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Loader builds the loaderdemo binary.
func (Build) Loader() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/loaderdemo", "./cmd/loaderdemo"), withStream()); err != nil {
		return err
	}
	return nil
}
