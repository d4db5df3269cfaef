package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/fulmenhq/bundlepress/pkg/safeio"
)

const (
	manifestPartName    = "metadata.json"
	manifestResultName  = "manifest.json"
	maxUploadReplyBytes = 1 << 20
)

// ArweaveUploader posts bundles to an upload function that stores them on
// Arweave and answers with the transaction id of each stored file.
type ArweaveUploader struct {
	endpoint string
	gateway  string
	env      string
	fetcher  fetch.HTTPFetcher
}

// NewArweaveUploader returns an uploader for endpoint. Links are built on gateway.
func NewArweaveUploader(endpoint, gateway, env string, fetcher fetch.HTTPFetcher) *ArweaveUploader {
	return &ArweaveUploader{
		endpoint: endpoint,
		gateway:  strings.TrimRight(gateway, "/"),
		env:      env,
		fetcher:  fetcher,
	}
}

type uploadReply struct {
	Messages []struct {
		Filename      string `json:"filename"`
		TransactionID string `json:"transactionId"`
	} `json:"messages"`
	Error string `json:"error"`
}

// Upload sends every file plus the manifest in one multipart request.
func (u *ArweaveUploader) Upload(ctx context.Context, files []File, manifest []byte) (string, error) {
	body, contentType, err := u.encode(files, manifest)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return "", &UploadError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.fetcher.Do(req)
	if err != nil {
		return "", &UploadError{Message: "request failed", Err: err}
	}

	data, err := fetch.ReadBody(resp, maxUploadReplyBytes)
	if err != nil {
		return "", &UploadError{Status: resp.StatusCode, Message: "failed to read reply", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{Status: resp.StatusCode, Message: snippet(data)}
	}

	var reply uploadReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", &UploadError{Status: resp.StatusCode, Message: "reply is not JSON", Err: err}
	}
	for _, m := range reply.Messages {
		if m.Filename == manifestResultName && m.TransactionID != "" {
			link := u.gateway + "/" + m.TransactionID
			logger.Debug("bundle stored", logger.String("link", link))
			return link, nil
		}
	}
	msg := "no transaction id for " + manifestResultName
	if reply.Error != "" {
		msg += ": " + reply.Error
	}
	return "", &UploadError{Status: resp.StatusCode, Message: msg}
}

func (u *ArweaveUploader) encode(files []File, manifest []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("env", u.env); err != nil {
		return nil, "", &UploadError{Message: "failed to encode form", Err: err}
	}
	for _, f := range files {
		content, err := safeio.ReadFile(f.Path)
		if err != nil {
			return nil, "", &UploadError{Message: "failed to read " + f.Path, Err: err}
		}
		if err := writePart(w, f.Placeholder, f.ContentType, content); err != nil {
			return nil, "", &UploadError{Message: "failed to encode " + f.Path, Err: err}
		}
	}
	if err := writePart(w, manifestPartName, "application/json", manifest); err != nil {
		return nil, "", &UploadError{Message: "failed to encode manifest", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, "", &UploadError{Message: "failed to encode form", Err: err}
	}
	return buf, w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, filename, contentType string, content []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file[]"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
