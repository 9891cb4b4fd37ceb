package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"
	"gopkg.in/yaml.v3"
)

// testScript decides the outcome of a test from its id:
// fail-* always fails, skip-* is skipped, flaky-* passes on its first retry
// and slow-* takes two seconds.
const testScript = `case $TEST_ID in fail*) exit 1;; skip*) exit 77;; flaky*) test $TEST_RETRIES -ge 1;; slow*) sleep 2;; esac`

type workspace struct {
	dir    string
	config string
	tests  string
}

func newWorkspace(limit, maxRetries int, ids ...string) workspace {
	dir, err := os.MkdirTemp("", "browser-runner-e2e-")
	Expect(err).NotTo(HaveOccurred())

	config := map[string]any{
		"runner": map[string]any{"max-retries": maxRetries},
		"worker": map[string]any{
			"command": []string{"sh", "-c", testScript},
			"timeout": "30s",
		},
		"browsers": map[string]any{
			"chrome":  map[string]any{"limit": limit},
			"firefox": map[string]any{"limit": 1},
		},
	}

	tests := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		tests = append(tests, map[string]any{"id": id, "path": []string{"E2E", id}})
	}

	ws := workspace{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		tests:  filepath.Join(dir, "tests.yaml"),
	}
	writeYAML(ws.config, config)
	writeYAML(ws.tests, map[string]any{"tests": tests})
	return ws
}

func (w workspace) cleanup() {
	if cfg.KeepDirs {
		GinkgoWriter.Printf("keeping %s\n", w.dir)
		return
	}
	_ = os.RemoveAll(w.dir)
}

func writeYAML(path string, v any) {
	data, err := yaml.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
}

func start(args ...string) *gexec.Session {
	session, err := gexec.Start(exec.Command(cfg.Binary, args...), GinkgoWriter, GinkgoWriter)
	Expect(err).NotTo(HaveOccurred())
	return session
}

func freePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

var _ = Describe("browser-runner run", func() {
	var ws workspace

	AfterEach(func() {
		ws.cleanup()
	})

	for _, local := range []bool{false, true} {
		mode := "worker processes"
		if local {
			mode = "local mode"
		}

		Context("with "+mode, func() {
			args := func(extra ...string) []string {
				a := []string{"run", "--config", ws.config, "--tests", ws.tests}
				if local {
					a = append(a, "--local")
				}
				return append(a, extra...)
			}

			It("should pass a green batch on every browser", func() {
				ws = newWorkspace(2, 0, "a", "b", "c")

				session := start(args()...)
				Eventually(session, 30*time.Second).Should(gexec.Exit(0))
				Expect(session.Out).To(gbytes.Say(`completed: 6 passed, 0 failed, 0 skipped`))
			})

			It("should retry a flaky test and report skipped ones", func() {
				ws = newWorkspace(2, 1, "flaky-1", "skip-1", "ok")

				session := start(args("--browser", "chrome")...)
				Eventually(session, 30*time.Second).Should(gexec.Exit(0))
				Expect(session.Out).To(gbytes.Say(`RETRY:chrome\] E2E/flaky-1`))
				Expect(session.Out).To(gbytes.Say(`completed: 2 passed, 0 failed, 1 skipped`))
			})

			It("should exit non-zero when a test keeps failing", func() {
				ws = newWorkspace(1, 2, "fail-1", "ok")

				session := start(args("--browser", "firefox")...)
				Eventually(session, 30*time.Second).Should(gexec.Exit(1))
				Expect(session.Out).To(gbytes.Say(`1 passed, 1 failed`))
				Expect(session.Out).To(gbytes.Say(`\[firefox\] E2E/fail-1`))
			})

			It("should exit non-zero when interrupted before every test ran", func() {
				ws = newWorkspace(1, 0, "slow-1", "a", "b")

				session := start(args("--browser", "firefox")...)
				Eventually(session.Out, 10*time.Second).Should(gbytes.Say(`START:firefox\] E2E/slow-1`))
				session.Interrupt()

				Eventually(session, 30*time.Second).Should(gexec.Exit(1))
				Expect(session.Out).To(gbytes.Say(`stopped: 1 passed, 0 failed, 0 skipped, 2 not run`))
			})
		})
	}

	It("should reject an unknown browser", func() {
		ws = newWorkspace(1, 0, "a")

		session := start("run", "--config", ws.config, "--tests", ws.tests, "--browser", "safari")
		Eventually(session, 10*time.Second).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say(`safari`))
	})
})

var _ = Describe("browser-runner serve", func() {
	var (
		ws      workspace
		session *gexec.Session
		baseURL string
	)

	BeforeEach(func() {
		ws = newWorkspace(2, 1, "a", "flaky-1", "fail-1")
		port := freePort()
		baseURL = fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)

		session = start("serve", "--config", ws.config, "--http-port", fmt.Sprint(port))
		Eventually(func() error {
			resp, err := http.Get(baseURL + "/status")
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		}, 10*time.Second, 100*time.Millisecond).Should(Succeed())
	})

	AfterEach(func() {
		session.Terminate()
		Eventually(session, 40*time.Second).Should(gexec.Exit())
		ws.cleanup()
	})

	getStatus := func() map[string]any {
		resp, err := http.Get(baseURL + "/status")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var status map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
		return status
	}

	It("should list the configured browsers", func() {
		resp, err := http.Get(baseURL + "/browsers")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var browsers []string
		Expect(json.NewDecoder(resp.Body).Decode(&browsers)).To(Succeed())
		Expect(browsers).To(Equal([]string{"chrome", "firefox"}))
	})

	It("should run two batches on the same workers", func() {
		for i := 0; i < 2; i++ {
			body := bytes.NewBufferString(`{"tests":[{"id":"a"},{"id":"flaky-1"},{"id":"fail-1"}],"browsers":["chrome"]}`)
			resp, err := http.Post(baseURL+"/runs", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			Eventually(func() any { return getStatus()["state"] }, 30*time.Second, 100*time.Millisecond).Should(Equal("completed"))

			pools := getStatus()["pools"].([]any)
			Expect(pools).To(HaveLen(1))
			Expect(pools[0]).To(And(
				HaveKeyWithValue("passed", BeNumerically("==", 2)),
				HaveKeyWithValue("failed", BeNumerically("==", 1)),
				HaveKeyWithValue("retries", BeNumerically("==", 2)),
			))
		}

		resp, err := http.Get(strings.TrimSuffix(baseURL, "/api/v1") + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Eventually(gbytes.BufferReader(resp.Body)).Should(gbytes.Say(`browser_runner_batches_total\{browser="chrome",forced="false"\} 2`))
	})
})
