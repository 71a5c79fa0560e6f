//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the tilereplay and tracegen commands into bin/.
func (Build) All() error {
	for _, cmd := range []string{"tilereplay", "tracegen"} {
		if _, err := executeCmd("go", withArgs("build", "-o", "bin/"+cmd, "./cmd/"+cmd), withStream()); err != nil {
			return err
		}
	}
	return nil
}

type Test mg.Namespace

// Runs the unit tests.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

type Trace mg.Namespace

// Writes the sample traces into testdata/traces.
func (Trace) Samples() error {
	_, err := executeCmd("go", withArgs("run", "./cmd/tracegen", "-dir", "testdata/traces"), withStream())
	return err
}

// Replays every sample trace with the built-in emulator.
func (Trace) Replay() error {
	mg.Deps(Trace.Samples)
	for _, name := range []string{"triangle", "quad", "depth", "textured"} {
		_, err := executeCmd("go", withArgs("run", "./cmd/tilereplay",
			"-trace", "testdata/traces/"+name+".gtrc",
			"-output", "testdata/traces/"+name+".png"), withStream())
		if err != nil {
			return err
		}
	}
	return nil
}
