package main

import (
	"testing"
)

// TestMain_Imports verifies that main package compiles and imports work
func TestMain_Imports(t *testing.T) {
	// This test ensures the main package can be compiled
	// The actual main() function calls os.Exit via rtaudioctl.Execute
	// which makes it difficult to test directly
}

// Note: The main function is minimal and delegates to rtaudioctl.Execute()
// Testing is done in the cmd/rtaudioctl package tests
