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

package response

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/tree"
)

// Normalizer converts raw HTTP responses into Descriptors.
type Normalizer struct {
	// TempDir receives transient download files. Empty uses os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// NewNormalizer creates a normalizer writing transient files to tempDir.
func NewNormalizer(tempDir string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{TempDir: tempDir, Logger: logger}
}

// Normalize reads raw.Body to completion and closes it. expected is only
// consulted to decide whether the body is a binary download.
func (n *Normalizer) Normalize(raw *http.Response, expected *Descriptor) (*Descriptor, error) {
	if raw.Body != nil {
		defer raw.Body.Close()
	}

	names := make([]string, 0, len(raw.Header))
	for name := range raw.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := tree.NewMap()
	for _, name := range names {
		values := raw.Header[name]
		if len(values) == 0 {
			continue
		}
		headers.SetFold(name, tree.String(values[len(values)-1]))
	}

	out := &Descriptor{
		ResponseCode:    raw.StatusCode,
		ResponseMessage: reasonPhrase(raw.StatusCode),
		Headers:         tree.MapOf(headers),
		Body:            tree.Null(),
	}

	if raw.Body == nil {
		return out, nil
	}

	if expected.ExpectsFile() {
		body, err := n.fileInBody(raw.Body)
		if err != nil {
			return nil, err
		}
		out.Body = body
		return out, nil
	}

	data, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, &apierrors.StageError{
			Type:    apierrors.TypeResponseCapture,
			Message: "failed to read response body",
			Cause:   err,
		}
	}
	body, err := NormalizeBody(data, raw.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

// NormalizeBody applies the canonicalization rules to an already read
// body. An empty body is null whatever the content type.
func NormalizeBody(data []byte, contentType string) (tree.Value, error) {
	if len(data) == 0 {
		return tree.Null(), nil
	}

	text := string(data)
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return tree.Wrap(tree.MarkerPlainText, tree.String(tree.StripNewlines(text))), nil
	}

	parsed, err := tree.ParseJSON(data)
	if err != nil {
		return tree.Null(), &apierrors.BodyDecodeError{ContentType: contentType, Raw: text, Cause: err}
	}
	switch parsed.Kind() {
	case tree.KindSequence:
		return tree.Wrap(tree.MarkerArrayInMap, parsed), nil
	case tree.KindMap, tree.KindNull:
		return parsed, nil
	default:
		return tree.Null(), &apierrors.BodyDecodeError{
			ContentType: contentType,
			Raw:         text,
			Cause:       fmt.Errorf("top-level %s is neither an object nor an array", parsed.Kind()),
		}
	}
}

// fileInBody drains body into a transient file and describes it by size
// and content hash. The file is removed before returning.
func (n *Normalizer) fileInBody(body io.Reader) (tree.Value, error) {
	f, err := os.CreateTemp(n.TempDir, "__download__*")
	if err != nil {
		return tree.Null(), &apierrors.StageError{
			Type:    apierrors.TypeResponseCapture,
			Message: "failed to create download file",
			Cause:   err,
		}
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			n.Logger.Warn("failed to remove download file", "path", path, "error", rmErr)
		}
	}()

	hash := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(f, hash), body)
	closeErr := f.Close()
	if copyErr != nil {
		return tree.Null(), &apierrors.StageError{
			Type:    apierrors.TypeResponseCapture,
			Message: "failed to download response body",
			Cause:   copyErr,
		}
	}
	if closeErr != nil {
		return tree.Null(), &apierrors.StageError{
			Type:    apierrors.TypeResponseCapture,
			Message: "failed to write download file",
			Cause:   closeErr,
		}
	}

	info, err := os.Stat(path)
	if err == nil {
		size = info.Size()
	}

	fib := tree.NewMap()
	fib.Set("name", tree.String("file"))
	fib.Set("size", tree.String(strconv.FormatInt(size, 10)))
	fib.Set("contentHash", tree.String(hex.EncodeToString(hash.Sum(nil))))
	return tree.Wrap(tree.MarkerFileInBody, tree.MapOf(fib)), nil
}
