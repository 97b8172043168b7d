/* Copyright 2025, Pulumi Corporation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package adapters

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// maxBufferedPayload is the largest body the TLS layer accepts in one write.
const maxBufferedPayload int64 = 2147483647 - 512

// filePart is a reader sent as a multipart file.
type filePart struct {
	field string
	name  string
	r     io.Reader
	size  int64
}

// formBody is the encoded body of a request with data.
type formBody struct {
	fields url.Values
	files  []filePart
	// total is the summed size of files; -1 when a size is unknown.
	total int64
}

// newFormBody splits data into plain fields and file parts.
func newFormBody(reqURL string, data proxmox.Params) (*formBody, error) {
	body := &formBody{fields: url.Values{}}
	for _, key := range sortedKeys(data) {
		value := data[key]
		if r, ok := value.(io.Reader); ok {
			size := readerSize(r)
			body.files = append(body.files, filePart{field: key, name: fileName(r, key), r: r, size: size})
			if size < 0 || body.total < 0 {
				body.total = -1
			} else {
				body.total += size
			}
			continue
		}
		if key == "command" && isAgentExec(reqURL) {
			args, err := agentCommand(value)
			if err != nil {
				return nil, err
			}
			body.fields[key] = args
			continue
		}
		body.fields[key] = formValues(value)
	}
	return body, nil
}

func (b *formBody) hasFiles() bool {
	return len(b.files) > 0
}

// encode returns the request body and its content type. Bodies with files
// larger than threshold (or of unknown size) are streamed through a pipe
// unless streaming is disabled.
func (b *formBody) encode(threshold int64, disableStreaming bool) (io.Reader, string, error) {
	if !b.hasFiles() {
		return strings.NewReader(b.fields.Encode()), "application/x-www-form-urlencoded", nil
	}

	large := b.total < 0 || b.total > threshold
	if large && !disableStreaming {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(b.writeTo(mw))
		}()
		return pr, mw.FormDataContentType(), nil
	}
	if b.total > maxBufferedPayload {
		return nil, "", proxmox.ErrPayloadTooLarge
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := b.writeTo(mw); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// streamed reports whether encode would return a pipe.
func (b *formBody) streamed(threshold int64, disableStreaming bool) bool {
	return b.hasFiles() && !disableStreaming && (b.total < 0 || b.total > threshold)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (b *formBody) writeTo(mw *multipart.Writer) error {
	for _, key := range sortedFieldKeys(b.fields) {
		for _, value := range b.fields[key] {
			if err := mw.WriteField(key, value); err != nil {
				return fmt.Errorf("failed to write field %s: %w", key, err)
			}
		}
	}
	for _, file := range b.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(file.field), quoteEscaper.Replace(file.name)))
		header.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create part %s: %w", file.field, err)
		}
		if _, err := io.Copy(part, file.r); err != nil {
			return fmt.Errorf("failed to copy %s: %w", file.name, err)
		}
	}
	return mw.Close()
}

func sortedFieldKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
