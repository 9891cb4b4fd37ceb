package main

import (
	"flag"
	"log"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"
	"go.uber.org/zap"
)

type configuration struct {
	Binary   string
	KeepDirs bool
}

var cfg configuration

func main() {
	flag.StringVar(&cfg.Binary, "binary", "", "Path to the browser-runner binary (built from source when empty)")
	flag.BoolVar(&cfg.KeepDirs, "keep-dirs", false, "Keep the generated configuration directories (useful for debugging)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if cfg.Binary == "" {
		path, err := gexec.Build("github.com/tupyy/browser-runner/cmd/browser-runner")
		if err != nil {
			log.Fatalf("failed to build browser-runner: %v", err)
		}
		cfg.Binary = path
		defer gexec.CleanupBuildArtifacts()
	}
	zap.S().Infow("using binary", "path", cfg.Binary)

	RegisterFailHandler(Fail)
	ok := RunSpecs(&testing.T{}, "E2E Suite")
	gexec.CleanupBuildArtifacts()
	if !ok {
		os.Exit(1)
	}
}
