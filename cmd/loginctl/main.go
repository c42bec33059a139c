// Command loginctl is a small CLI client for the login service, mainly
// for smoke-testing a deployed instance.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	var (
		baseURL  = flag.String("addr", "http://localhost:5557", "base URL of the login service")
		username = flag.String("username", "", "chayns account email")
		password = flag.String("password", "", "chayns account password")
		register = flag.Bool("register", false, "create a new account instead of logging in")
		first    = flag.String("first", "", "first name for registration")
		last     = flag.String("last", "", "last name for registration")
		timeout  = flag.Duration("timeout", 5*time.Minute, "request timeout")
	)
	flag.Parse()

	var (
		path string
		body any
	)
	if *register {
		if *first == "" || *last == "" {
			fmt.Fprintln(os.Stderr, "-first and -last are required with -register")
			os.Exit(2)
		}
		path = "/aichat/chayns/register"
		body = map[string]string{"first_name": *first, "last_name": *last, "password": *password}
	} else {
		if *username == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "-username and -password are required")
			os.Exit(2)
		}
		path = "/aichat/chayns/login"
		body = map[string]string{"username": *username, "password": *password}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode request: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Post(*baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "server returned %s\n", resp.Status)
		os.Exit(1)
	}
}
