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

// Package spec defines the declarative test specification format and
// loads specifications by identifier.
package spec

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/tree"
)

// Specification describes one API call and its expected outcome. It is
// treated as immutable once loaded; injection produces copies.
type Specification struct {
	GUID           string              `yaml:"_guid_,omitempty" json:"_guid_,omitempty"`
	Title          string              `yaml:"title,omitempty" json:"title,omitempty"`
	Specs          []string            `yaml:"specs,omitempty" json:"specs,omitempty"`
	ProductName    string              `yaml:"productName" json:"productName"`
	OperationName  string              `yaml:"operationName" json:"operationName"`
	Method         string              `yaml:"method" json:"method"`
	URI            string              `yaml:"uri" json:"uri"`
	Request        Request             `yaml:"request,omitempty" json:"request,omitempty"`
	Users          Users               `yaml:"users,omitempty" json:"users,omitempty"`
	Expected       response.Descriptor `yaml:"expectedResponse" json:"expectedResponse"`
	FeatureToggles []string            `yaml:"featureToggles,omitempty" json:"featureToggles,omitempty"`

	// Source is the file the specification was read from.
	Source string `yaml:"-" json:"-"`
}

// Request is the request half of a specification. Every field is a tree
// value so that back-references can appear anywhere inside it.
type Request struct {
	Headers       tree.Value `yaml:"headers,omitempty" json:"headers,omitempty"`
	PathVariables tree.Value `yaml:"pathVariables,omitempty" json:"pathVariables,omitempty"`
	QueryParams   tree.Value `yaml:"queryParams,omitempty" json:"queryParams,omitempty"`
	Body          tree.Value `yaml:"body,omitempty" json:"body,omitempty"`
	Multipart     bool       `yaml:"multipart,omitempty" json:"multipart,omitempty"`
}

// User is a credential pair. Username and Password may hold placeholders
// until the user is resolved.
type User struct {
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// UserEntry is one declared user under its role name.
type UserEntry struct {
	Role string
	User *User
}

// Users keeps declared users in file order. Position 0 is the invoking
// user.
type Users []UserEntry

// ID returns the identifier the specification is known by.
func (s *Specification) ID() string {
	return s.GUID
}

// MeetsSpec reports whether the specification declares the given spec tag.
func (s *Specification) MeetsSpec(tag string) bool {
	return slices.Contains(s.Specs, tag)
}

// MeetsOperationOfProduct reports whether the specification targets the
// given product and operation.
func (s *Specification) MeetsOperationOfProduct(product, operation string) bool {
	return strings.TrimSpace(s.ProductName) == strings.TrimSpace(product) &&
		strings.TrimSpace(s.OperationName) == strings.TrimSpace(operation)
}

// Clone returns a copy that can be modified without affecting s. Users are
// copied so in-place credential resolution stays local to the copy.
func (s *Specification) Clone() *Specification {
	out := *s
	out.Specs = slices.Clone(s.Specs)
	out.FeatureToggles = slices.Clone(s.FeatureToggles)
	out.Users = make(Users, len(s.Users))
	for i, entry := range s.Users {
		u := *entry.User
		u.Roles = slices.Clone(entry.User.Roles)
		out.Users[i] = UserEntry{Role: entry.Role, User: &u}
	}
	return &out
}

// Snapshot renders the request half of the specification as a tree value
// for back-reference lookups.
func (s *Specification) Snapshot() tree.Value {
	m := tree.NewMap()
	m.Set("method", tree.String(s.Method))
	m.Set("uri", tree.String(s.URI))
	m.Set("headers", s.Request.Headers)
	m.Set("pathVariables", s.Request.PathVariables)
	m.Set("queryParams", s.Request.QueryParams)
	m.Set("body", s.Request.Body)
	return tree.MapOf(m)
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping mapping order.
func (u *Users) UnmarshalYAML(node *yaml.Node) error {
	var v tree.Value
	if err := node.Decode(&v); err != nil {
		return err
	}
	return u.fromValue(v)
}

// UnmarshalJSON implements json.Unmarshaler, keeping object order.
func (u *Users) UnmarshalJSON(data []byte) error {
	v, err := tree.ParseJSON(data)
	if err != nil {
		return err
	}
	return u.fromValue(v)
}

func (u *Users) fromValue(v tree.Value) error {
	if v.IsNull() {
		*u = nil
		return nil
	}
	m, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("users must be a map of role name to user, got %s", v.Kind())
	}
	out := make(Users, 0, m.Len())
	var err error
	m.Range(func(role string, entry tree.Value) bool {
		var user User
		data, _ := entry.MarshalJSON()
		if err = json.Unmarshal(data, &user); err != nil {
			err = fmt.Errorf("users.%s: %w", role, err)
			return false
		}
		out = append(out, UserEntry{Role: role, User: &user})
		return true
	})
	if err != nil {
		return err
	}
	*u = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (u Users) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, entry := range u {
		var userNode yaml.Node
		if err := userNode.Encode(entry.User); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry.Role}, &userNode)
	}
	return n, nil
}

// MarshalJSON implements json.Marshaler.
func (u Users) MarshalJSON() ([]byte, error) {
	m := tree.NewMap()
	for _, entry := range u {
		data, err := json.Marshal(entry.User)
		if err != nil {
			return nil, err
		}
		v, err := tree.ParseJSON(data)
		if err != nil {
			return nil, err
		}
		m.Set(entry.Role, v)
	}
	return tree.MapOf(m).MarshalJSON()
}
