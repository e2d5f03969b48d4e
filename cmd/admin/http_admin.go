package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/state"
	doRequest(http.MethodGet, u)
}

// clockCmd holds, releases or reports the server's clock. The server only
// accepts it from loopback.
func clockCmd(args []string) {
	fs := flag.NewFlagSet("clock", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/clock"
	switch op := fs.Arg(0); op {
	case "", "status":
		doRequest(http.MethodGet, u)
	case "pause", "resume":
		doRequest(http.MethodPost, u+"?op="+op)
	default:
		fmt.Fprintln(os.Stderr, "usage: admin clock [-url u] [status|pause|resume]")
		os.Exit(2)
	}
}

func doRequest(method, u string) {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
