package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/urfave/cli"
)

// restClient is a tiny JSON/HTTP client against swapd's own REST API
// (api.Server.Router), mirroring lncli's getClient/getClientConn pattern
// of resolving the daemon's endpoint straight off the --rpcserver flag.
type restClient struct {
	baseURL string
	http    *http.Client
}

func newRESTClient(ctx *cli.Context) *restClient {
	return &restClient{
		baseURL: "http://" + ctx.GlobalString("rpcserver"),
		http:    &http.Client{},
	}
}

func (c *restClient) post(path string, body, result interface{}) error {
	return c.do(http.MethodPost, path, body, result)
}

func (c *restClient) get(path string, result interface{}) error {
	return c.do(http.MethodGet, path, nil, result)
}

func (c *restClient) do(method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("swapd returned status %d: %s", resp.StatusCode, payload)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// printJSON pretty-prints v to stdout, matching lncli's response-echo
// convention for every subcommand.
func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		fatal(err)
		return
	}
	fmt.Println(string(out))
}
