package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

const usage = `usage: bond-cli [--rpc URL] [--token JWT] [-o json|yaml] <command> [args]

commands:
  generate-key [--light] [keystore-path]       create a key and save it to an encrypted keystore
  admin                                        show the current administrator
  transfer-admin <caller> <new-admin>          hand the admin role to a new principal
  create <caller> <title> <goal> <verifier>    open a bond and print its id
  fund <caller> <id> <amount>                  add funds to an active bond
  verify <caller> <id>                         certify and close a bond
  get <id>                                     show a bond
  list [offset] [limit]                        list bonds in id order

environment:
  BOND_RPC_URL                 gateway endpoint (default http://localhost:8080)
  BOND_RPC_TOKEN               bearer token sent with write commands
  BOND_KEYSTORE_PASSPHRASE     keystore passphrase for generate-key
`

type cli struct {
	endpoint string
	token    string
	output   string
	pretty   bool
	client   *http.Client
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	c := &cli{
		endpoint: defaultRPCEndpoint(),
		token:    strings.TrimSpace(os.Getenv("BOND_RPC_TOKEN")),
		output:   "json",
		pretty:   term.IsTerminal(int(os.Stdout.Fd())),
		client:   &http.Client{Timeout: 15 * time.Second},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	os.Exit(c.run(os.Args[1:]))
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("BOND_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// applyGlobalFlags strips the global flags from args and applies them.
func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, inline := strings.Cut(arg, "=")
		var target *string
		switch name {
		case "--rpc":
			target = &c.endpoint
		case "--token":
			target = &c.token
		case "-o", "--output":
			target = &c.output
		default:
			out = append(out, arg)
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		*target = strings.TrimSpace(value)
	}
	switch c.output {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported output format %q", c.output)
	}
	return out, nil
}

func (c *cli) run(args []string) int {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return 2
	}
	if len(args) < 1 {
		fmt.Fprint(c.stderr, usage)
		return 2
	}

	command, rest := args[0], args[1:]
	arity := map[string][2]int{
		"admin":          {0, 0},
		"transfer-admin": {2, 2},
		"create":         {4, 4},
		"fund":           {3, 3},
		"verify":         {2, 2},
		"get":            {1, 1},
		"list":           {0, 2},
	}
	if command == "generate-key" {
		return c.generateKey(rest)
	}
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Fprint(c.stdout, usage)
		return 0
	}
	bounds, ok := arity[command]
	if !ok {
		fmt.Fprintf(c.stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
	if len(rest) < bounds[0] || len(rest) > bounds[1] {
		fmt.Fprintf(c.stderr, "%s: wrong number of arguments\n\n%s", command, usage)
		return 2
	}

	// Numeric arguments are validated locally so they can never rewrite the
	// request path.
	numeric := map[string][]int{"fund": {1}, "verify": {1}, "get": {0}, "list": {0, 1}}
	for _, idx := range numeric[command] {
		if idx >= len(rest) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(rest[idx]), 10, 64)
		if err != nil {
			fmt.Fprintf(c.stderr, "%s: invalid number %q\n", command, rest[idx])
			return 2
		}
		rest[idx] = strconv.FormatUint(n, 10)
	}

	var value any
	switch command {
	case "admin":
		value, err = c.call(http.MethodGet, "/v1/admin", nil)
	case "transfer-admin":
		value, err = c.call(http.MethodPost, "/v1/admin/transfer", map[string]string{
			"caller": rest[0], "newAdmin": rest[1],
		})
	case "create":
		value, err = c.call(http.MethodPost, "/v1/bonds", map[string]string{
			"caller": rest[0], "title": rest[1], "goal": rest[2], "verifier": rest[3],
		})
	case "fund":
		value, err = c.call(http.MethodPost, "/v1/bonds/"+rest[1]+"/fund", map[string]string{
			"caller": rest[0], "amount": rest[2],
		})
	case "verify":
		value, err = c.call(http.MethodPost, "/v1/bonds/"+rest[1]+"/verify", map[string]string{
			"caller": rest[0],
		})
	case "get":
		value, err = c.call(http.MethodGet, "/v1/bonds/"+rest[0], nil)
	case "list":
		path := "/v1/bonds"
		query := url.Values{}
		if len(rest) > 0 {
			query.Set("offset", rest[0])
		}
		if len(rest) > 1 {
			query.Set("limit", rest[1])
		}
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
		value, err = c.call(http.MethodGet, path, nil)
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if err := c.print(value); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
