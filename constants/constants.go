package constants

import (
	"errors"
	"os"
)

func GetOutDir() string {
	path := os.Getenv("OUT_PATH")
	if path != "" {
		return path
	}
	return "./out"
}

func GetMediaDir() (string, error) {
	path := os.Getenv("MEDIA_PATH")
	if path != "" {
		return path, nil
	}
	return "", errors.New("MEDIA_PATH environment variable is not set")
}

// ResultsIndexFilename lists every stored run inside the out dir.
const ResultsIndexFilename = "index.dat"

const ResultExtension = ".dat"

// DefaultTopHypotheses is how many hypotheses are reported per run.
const DefaultTopHypotheses = 5
