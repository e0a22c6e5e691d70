//go:build gym

package main

// Registers the gym: environment ids
import _ "github.com/samuelfneumann/racerl/environment/gym"
