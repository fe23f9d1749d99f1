package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/blocksim/business/web/errs"
)

var client = http.Client{Timeout: 30 * time.Second}

// call sends the request to the simulation and decodes the response into
// resp. Error responses come back as an error carrying the api message.
func call(method string, path string, body any, resp any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var er errs.Response
		if err := json.NewDecoder(res.Body).Decode(&er); err != nil {
			return fmt.Errorf("status %d", res.StatusCode)
		}
		if len(er.Fields) > 0 {
			return fmt.Errorf("status %d: %s %v", res.StatusCode, er.Error, er.Fields)
		}
		return fmt.Errorf("status %d: %s", res.StatusCode, er.Error)
	}

	if resp == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(resp)
}

// printJSON writes v to stdout in indented form.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}
