package atproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mithrel/whtreader/pkg/api"
)

// RemoteError reports a failed call to a remote service. It matches
// api.ErrRemoteFetch with errors.Is, and api.ErrNotFound when the remote
// said the profile, repo or record does not exist.
type RemoteError struct {
	Op     string
	URL    string
	Status int

	// Name and Message come from the XRPC error body when present.
	Name    string
	Message string

	Err error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Name != "" {
		b.WriteString(": " + e.Name)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() []error {
	errs := []error{api.ErrRemoteFetch}
	if e.NotFound() {
		errs = append(errs, api.ErrNotFound)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NotFound reports whether the remote answered that the target does not exist.
func (e *RemoteError) NotFound() bool {
	if e.Status == http.StatusNotFound {
		return true
	}
	switch e.Name {
	case "RecordNotFound", "RepoNotFound", "ProfileNotFound", "NotFound":
		return true
	}
	return e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "not found")
}

type xrpcErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newStatusError(op, url string, status int, body []byte) *RemoteError {
	e := &RemoteError{Op: op, URL: url, Status: status}
	var xe xrpcErrorBody
	if json.Unmarshal(body, &xe) == nil && (xe.Error != "" || xe.Message != "") {
		e.Name = xe.Error
		e.Message = xe.Message
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		e.Message = s
	}
	return e
}

var errMissingURI = errors.New("record without uri")
