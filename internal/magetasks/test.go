package magetasks

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/magefile/mage/sh"
)

// TestAll runs all tests.
func TestAll() error {
	PrintH2Header("Tests")
	if err := sh.RunV("go", "test", "./..."); err != nil {
		PrintError("Tests failed")
		return err
	}
	PrintSuccess("All tests passed")
	return nil
}

// TestCoverage runs tests with coverage.
func TestCoverage() error {
	PrintH2Header("Test Coverage")
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		PrintError("Tests failed")
		return err
	}
	_ = sh.RunV("go", "tool", "cover", "-func=coverage.out")
	PrintSuccess("Coverage report generated")
	return nil
}

// TestRace runs tests with race detector.
func TestRace() error {
	PrintH2Header("Race Detector")
	if err := sh.RunV("go", "test", "-race", "./..."); err != nil {
		PrintError("Race detector found issues")
		return err
	}
	PrintSuccess("No race conditions detected")
	return nil
}

// TestReport runs the tests with -json and prints a per-package summary.
func TestReport() error {
	PrintH2Header("Test Report")

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := sh.Exec(nil, pw, os.Stderr, "go", "test", "-json", "./...")
		_ = pw.Close()
		done <- err
	}()

	report, err := Summarize(context.Background(), pr)
	_, _ = io.Copy(io.Discard, pr)
	runErr := <-done
	if err != nil {
		return err
	}

	report.Render(Out)
	if n := report.Failed(); n > 0 {
		PrintError(fmt.Sprintf("%d tests failed", n))
		return fmt.Errorf("%d tests failed", n)
	}
	if runErr != nil {
		PrintError("go test failed")
		return runErr
	}
	PrintSuccess("All tests passed")
	return nil
}
