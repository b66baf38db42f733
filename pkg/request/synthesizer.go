// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package request

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/spec"
	"github.com/tombee/apiscenario/pkg/tree"
)

// Multipart descriptor keys.
const (
	partKey      = "key"
	partValue    = "value"
	partFilePath = "filePath"
)

// Synthesizer turns specifications into request descriptors.
type Synthesizer struct {
	// BaseURL is prefixed to URIs that carry no http: or https: scheme.
	BaseURL string
	// ResourceDir is where multipart filePath entries are read from.
	ResourceDir string
	// TempDir receives transient upload copies. Empty uses os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// Synthesize builds the request described by s. Transient files created
// for uploads are removed before it returns, on every path.
func (syn *Synthesizer) Synthesize(s *spec.Specification) (*Descriptor, error) {
	method, err := ValidateMethod(s.Method)
	if err != nil {
		return nil, err
	}

	target, err := syn.resolveURL(s.URI, s.Request)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{Method: method, URL: target, Header: http.Header{}}
	if headers, ok := s.Request.Headers.AsMap(); ok {
		headers.Range(func(name string, v tree.Value) bool {
			d.Header.Set(name, v.Text())
			return true
		})
	}

	body := s.Request.Body
	if body.IsNull() {
		return d, nil
	}
	if inner, ok := tree.Unwrap(tree.MarkerArrayInMap, body); ok {
		body = inner
	}

	if s.Request.Multipart {
		if err := syn.multipartBody(d, body); err != nil {
			return nil, err
		}
		return d, nil
	}

	if text, ok := tree.Unwrap(tree.MarkerPlainText, body); ok {
		d.Body = []byte(text.Text())
		d.ContentType = d.Header.Get("Content-Type")
		if d.ContentType == "" {
			d.ContentType = "text/plain; charset=utf-8"
			d.Header.Set("Content-Type", d.ContentType)
		}
		return d, nil
	}

	data, err := body.MarshalJSON()
	if err != nil {
		return nil, synthesisError("failed to serialize request body", err)
	}
	d.Body = data
	d.ContentType = d.Header.Get("Content-Type")
	if d.ContentType == "" {
		d.ContentType = "application/json"
		d.Header.Set("Content-Type", d.ContentType)
	}
	return d, nil
}

// ValidateMethod checks m against Methods ignoring case and returns it
// upper-cased.
func ValidateMethod(m string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(m))
	if !slices.Contains(Methods, upper) {
		return "", &apierrors.InvalidMethodError{Method: m}
	}
	return upper, nil
}

// HasScheme reports whether uri already names its transport scheme.
func HasScheme(uri string) bool {
	lower := strings.ToLower(strings.TrimSpace(uri))
	return strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:")
}

func (syn *Synthesizer) resolveURL(uri string, req spec.Request) (string, error) {
	path := strings.TrimSpace(uri)
	if vars, ok := req.PathVariables.AsMap(); ok {
		vars.Range(func(name string, v tree.Value) bool {
			path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(v.Text()))
			return true
		})
	}

	if !HasScheme(path) {
		if syn.BaseURL == "" {
			return "", synthesisError(fmt.Sprintf("uri %q has no scheme and no base URL is configured", uri), nil)
		}
		path = strings.TrimRight(syn.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(path)
	if err != nil {
		return "", synthesisError(fmt.Sprintf("invalid uri %q", path), err)
	}

	if params, ok := req.QueryParams.AsMap(); ok && params.Len() > 0 {
		q := u.Query()
		params.Range(func(name string, v tree.Value) bool {
			if items, isSeq := v.AsSequence(); isSeq {
				q.Del(name)
				for _, item := range items {
					q.Add(name, item.Text())
				}
				return true
			}
			q.Set(name, v.Text())
			return true
		})
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type stagedPart struct {
	name     string
	fileName string
	mimeType string
	content  []byte
}

func (syn *Synthesizer) multipartBody(d *Descriptor, body tree.Value) error {
	var elements []tree.Value
	if items, ok := body.AsSequence(); ok {
		elements = items
	} else {
		elements = []tree.Value{body}
	}

	parts := make([]stagedPart, 0, len(elements))
	for i, element := range elements {
		p, err := syn.stagePart(element)
		if err != nil {
			return synthesisError(fmt.Sprintf("failed to put multi-part into the request: part %d", i), err)
		}
		parts = append(parts, p)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundaryFor(parts)); err != nil {
		return synthesisError("failed to set multipart boundary", err)
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.fileName != "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.name), escapeQuotes(p.fileName)))
			h.Set("Content-Type", p.mimeType)
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(p.name)))
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			return synthesisError("failed to put multi-part into the request: "+p.name, err)
		}
		if _, err := pw.Write(p.content); err != nil {
			return synthesisError("failed to put multi-part into the request: "+p.name, err)
		}
		d.Parts = append(d.Parts, Part{Name: p.name, FileName: p.fileName, Size: len(p.content)})
	}
	if err := w.Close(); err != nil {
		return synthesisError("failed to finish multipart body", err)
	}

	d.Body = buf.Bytes()
	d.ContentType = w.FormDataContentType()
	d.Header.Set("Content-Type", d.ContentType)
	return nil
}

func (syn *Synthesizer) stagePart(element tree.Value) (stagedPart, error) {
	m, ok := element.AsMap()
	if !ok {
		return stagedPart{}, fmt.Errorf("multipart element must be a map with %q and %q, got %s", partKey, partValue, element.Kind())
	}
	keyVal, ok := m.Get(partKey)
	if !ok || keyVal.Text() == "" {
		return stagedPart{}, fmt.Errorf("multipart element is missing %q", partKey)
	}
	p := stagedPart{name: keyVal.Text()}

	fileVal, hasFile := m.Get(partFilePath)
	if !hasFile || fileVal.Text() == "" {
		v, _ := m.Get(partValue)
		p.content = []byte(v.Text())
		return p, nil
	}

	content, err := syn.loadResource(fileVal.Text())
	if err != nil {
		return stagedPart{}, fmt.Errorf("%s: %w", p.name, err)
	}
	p.fileName = filepath.Base(fileVal.Text())
	p.mimeType = mime.TypeByExtension(filepath.Ext(p.fileName))
	if p.mimeType == "" {
		p.mimeType = "application/octet-stream"
	}
	p.content = content
	return p, nil
}

// loadResource copies a resource into a transient file and reads the
// part content from that copy. The copy is removed before returning.
func (syn *Synthesizer) loadResource(rel string) ([]byte, error) {
	src, err := syn.resourcePath(rel)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &apierrors.NotFoundError{Resource: "resource file", ID: rel}
		}
		return nil, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(syn.TempDir, "upload-*-"+filepath.Base(rel))
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			syn.logger().Warn("failed to remove upload file", "path", tmpPath, "error", rmErr)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(tmp)
}

func (syn *Synthesizer) resourcePath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("resource path %q must be relative to the resource directory", rel)
	}
	return filepath.Join(syn.ResourceDir, clean), nil
}

func (syn *Synthesizer) logger() *slog.Logger {
	if syn.Logger != nil {
		return syn.Logger
	}
	return slog.Default()
}

// boundaryFor derives the multipart boundary from the part contents so
// identical inputs give identical bodies.
func boundaryFor(parts []stagedPart) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p.name))
		h.Write([]byte{0})
		h.Write([]byte(p.fileName))
		h.Write([]byte{0})
		h.Write(p.content)
		h.Write([]byte{0})
	}
	return "apiscenario-" + hex.EncodeToString(h.Sum(nil))[:32]
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func synthesisError(message string, cause error) error {
	return &apierrors.StageError{Type: apierrors.TypeRequestSynthesis, Message: message, Cause: cause}
}
